// Package state is the core API for the ledger and applies the business
// rules of blocks, rounds and transactions to the wallets.
package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/dpos"
	"github.com/ardanlabs/dposledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/dposledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions"
	"github.com/ardanlabs/dposledger/foundation/blockchain/transactions/magistrate"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Set of errors the state can return.
var (
	ErrFatal          = errors.New("fatal state error")
	ErrInvalidBlock   = errors.New("invalid block")
	ErrGenesisRevert  = errors.New("the genesis block can not be reverted")
	ErrNotForger      = errors.New("not the forger of the current slot")
	ErrSlotClosed     = errors.New("forging is no longer allowed in the current slot")
	ErrSlotTaken      = errors.New("a block was already forged in the current slot")
	ErrAlreadyForged  = errors.New("transaction already forged")
	ErrNoActiveRound  = errors.New("no active delegates")
	ErrNotInitialized = errors.New("state not initialized")
)

// lastBlockAttempts is the number of times the last block is reloaded,
// dropping it when corrupt, before the state gives up.
const lastBlockAttempts = 5

// NegativeBalanceError is returned when a rebuilt wallet ends with a
// balance or vote balance it is not allowed to have.
type NegativeBalanceError struct {
	Address string
	Balance *big.Int
	Vote    bool
}

// Error implements the error interface.
func (e *NegativeBalanceError) Error() string {
	if e.Vote {
		return fmt.Sprintf("Wallet %s has a negative vote balance of '%s'", e.Address, e.Balance)
	}
	return fmt.Sprintf("Wallet %s has a negative balance of '%s'", e.Address, e.Balance)
}

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for forging blocks.
type Worker interface {
	Shutdown()
	SignalForge()
}

// =============================================================================

// Config represents the configuration required to start the ledger state.
type Config struct {
	Storage    database.Storage
	Genesis    genesis.Genesis
	Pool       mempool.Config
	Dispatcher events.Dispatcher
	EvHandler  EventHandler
}

// State manages the wallets, rounds and blocks of the ledger.
type State struct {
	mu     sync.Mutex
	tipMu  sync.RWMutex
	tip    database.Block
	loaded bool

	genesis    genesis.Genesis
	evHandler  EventHandler
	dispatcher events.Dispatcher
	pending    *events.Buffer
	tracer     trace.Tracer

	db         *database.Database
	wallets    *wallets.Repository
	registry   *transactions.Registry
	dpos       *dpos.State
	mempool    *mempool.Mempool
	blockState *BlockState
	roundState *RoundState
	builder    *Builder

	Worker Worker
}

// New constructs the ledger state over the storage. Nothing is loaded
// until Initialize is called.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Storage == nil {
		return nil, errors.New("state: storage is required")
	}
	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = events.Multi{}
	}

	attrs := wallets.NewAttributeSet()
	repo, err := wallets.NewRepository(attrs, magistrate.Indexes()...)
	if err != nil {
		return nil, err
	}

	pool, err := mempool.NewWithConfig(cfg.Pool)
	if err != nil {
		return nil, err
	}

	db := database.New(cfg.Storage, ev)

	s := State{
		genesis:    cfg.Genesis,
		evHandler:  ev,
		dispatcher: dispatcher,
		pending:    &events.Buffer{},
		tracer:     otel.Tracer("state"),
		db:         db,
		wallets:    repo,
		mempool:    pool,
	}

	env := transactions.Env{
		Wallets:    repo,
		History:    db,
		Pool:       pool,
		Milestones: cfg.Genesis.Milestones,
		LastBlock:  s.lastHeader,
	}

	s.registry = transactions.NewRegistry(attrs)
	if err := transactions.RegisterCore(s.registry, env); err != nil {
		return nil, err
	}
	if err := magistrate.Register(s.registry, env); err != nil {
		return nil, err
	}

	s.dpos = dpos.New(repo, dpos.EventHandler(ev))
	// Block and round events wait in pending until the block is stored.
	s.blockState = NewBlockState(repo, s.registry, cfg.Genesis.Milestones, s.pending, ev)
	s.roundState = NewRoundState(db, s.dpos, repo, cfg.Genesis.Milestones, s.pending, ev)
	s.builder = &Builder{
		db:               db,
		repo:             repo,
		registry:         s.registry,
		dpos:             s.dpos,
		milestones:       cfg.Genesis.Milestones,
		dispatcher:       dispatcher,
		tracer:           s.tracer,
		evHandler:        ev,
		genesisSenders:   cfg.Genesis.Senders(),
		negativeBalances: cfg.Genesis.NegativeBalances,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// Initialize loads the chain from storage, writing the genesis block into
// an empty storage, and rebuilds the wallets and the current round.
func (s *State) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "state.initialize")
	defer span.End()

	s.dispatcher.Dispatch(events.StateStarting, nil)

	last, err := s.loadLastBlock()
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.evHandler("state: Initialize: empty storage, writing genesis block[%s]", s.genesis.Block.ID)
		if err := s.db.SaveBlock(s.genesis.Block); err != nil {
			return fmt.Errorf("%w: saving genesis block: %w", ErrFatal, err)
		}
		last = s.genesis.Block

	case err != nil:
		return err
	}

	if err := s.verifyGenesis(); err != nil {
		return err
	}

	s.setTip(last)

	s.evHandler("state: Initialize: building state from height[%d]", last.Height)

	if err := s.builder.Run(ctx, last.Height); err != nil {
		return fmt.Errorf("building state: %w", err)
	}

	if err := s.roundState.RestoreCurrentRound(ctx, last.Height); err != nil {
		return fmt.Errorf("restoring round: %w", err)
	}

	s.evHandler("state: Initialize: ready at height[%d] round[%d]", last.Height, s.dpos.RoundInfo().Round)

	return nil
}

// Reset wipes the storage and the pool and starts again from the genesis
// block.
func (s *State) Reset(ctx context.Context) error {
	s.evHandler("state: Reset: started")
	defer s.evHandler("state: Reset: completed")

	s.mu.Lock()
	s.mempool.Truncate()
	err := s.db.Reset()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	return s.Initialize(ctx)
}

// RestoreCurrentRound loads the delegates of the round of the last block.
func (s *State) RestoreCurrentRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roundState.RestoreCurrentRound(ctx, s.lastHeader().Height)
}

// Shutdown cleanly brings the state down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the storage is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all forging activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// loadLastBlock returns the last stored block. A corrupt last block is
// deleted and the one before it tried, up to lastBlockAttempts times.
func (s *State) loadLastBlock() (database.Block, error) {
	for attempt := 1; attempt <= lastBlockAttempts; attempt++ {
		block, err := s.db.LastBlock()
		if err == nil {
			return block, nil
		}
		if !errors.Is(err, database.ErrCorruptBlock) {
			return database.Block{}, err
		}

		height, herr := s.db.LastHeight()
		if herr != nil {
			return database.Block{}, herr
		}

		s.evHandler("state: loadLastBlock: WARNING: attempt[%d]: deleting corrupt block at height[%d]: %s", attempt, height, err)

		if err := s.db.DeleteHeight(height); err != nil {
			return database.Block{}, err
		}
	}

	return database.Block{}, fmt.Errorf("%w: unable to load the last block after %d attempts", ErrFatal, lastBlockAttempts)
}

// verifyGenesis checks the stored genesis block is the configured one.
func (s *State) verifyGenesis() error {
	stored, err := s.db.Block(1)
	if err != nil {
		return fmt.Errorf("%w: loading genesis block: %w", ErrFatal, err)
	}

	if stored.ID != s.genesis.Block.ID || stored.PayloadHash != s.genesis.Block.PayloadHash {
		return fmt.Errorf("%w: stored genesis block[%s] payload[%s] does not match the genesis file block[%s] payload[%s]",
			ErrFatal, stored.ID, stored.PayloadHash, s.genesis.Block.ID, s.genesis.Block.PayloadHash)
	}

	return nil
}

func (s *State) setTip(block database.Block) {
	s.tipMu.Lock()
	defer s.tipMu.Unlock()

	s.tip = block
	s.loaded = true
}

// lastHeader is handed to the transaction handlers. It takes its own lock
// since handlers run while the state mutex is held.
func (s *State) lastHeader() database.BlockHeader {
	s.tipMu.RLock()
	defer s.tipMu.RUnlock()

	return s.tip.BlockHeader
}
