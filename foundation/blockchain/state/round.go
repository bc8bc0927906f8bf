package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/dpos"
	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
)

// MissedBlock is the payload of the forger.missing event.
type MissedBlock struct {
	Slot      int64  `json:"slot"`
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// MissedRound is the payload of the round.missed event.
type MissedRound struct {
	Round     int64  `json:"round"`
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// RoundState keeps the delegates of the current round in step with the
// blocks being applied and reverted.
type RoundState struct {
	db         *database.Database
	dpos       *dpos.State
	store      wallets.Store
	milestones *milestones.Schedule
	dispatcher events.Dispatcher
	evHandler  EventHandler

	mu     sync.RWMutex
	blocks []database.BlockHeader
}

// NewRoundState constructs a round state.
func NewRoundState(db *database.Database, dposState *dpos.State, store wallets.Store, sch *milestones.Schedule, dispatcher events.Dispatcher, evHandler EventHandler) *RoundState {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &RoundState{
		db:         db,
		dpos:       dposState,
		store:      store,
		milestones: sch,
		dispatcher: dispatcher,
		evHandler:  evHandler,
	}
}

// BlockTimeLookup returns the timestamps of the stored blocks.
func (rs *RoundState) BlockTimeLookup() forging.BlockTimeLookup {
	return rs.db.BlockTimestamp
}

// BlocksInCurrentRound returns the headers of the blocks applied in the
// current round.
func (rs *RoundState) BlocksInCurrentRound() []database.BlockHeader {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return append([]database.BlockHeader(nil), rs.blocks...)
}

// ApplyBlock records the block in its round, reports the slots missed since
// the previous block and starts the next round when the block closes one.
func (rs *RoundState) ApplyBlock(ctx context.Context, previous database.BlockHeader, block database.Block) error {
	if err := rs.detectMissedBlocks(previous, block.BlockHeader); err != nil {
		return err
	}

	rs.mu.Lock()
	rs.blocks = append(rs.blocks, block.BlockHeader)
	rs.mu.Unlock()

	if block.Height == 1 || forging.IsNewRound(block.Height+1, rs.milestones) {
		return rs.applyRound(block.Height)
	}

	return nil
}

// RevertBlock removes the block from its round. When the block closed a
// round, the round it started is deleted and the delegates of the round
// the block belongs to are restored from storage.
func (rs *RoundState) RevertBlock(ctx context.Context, block database.Block) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if n := len(rs.blocks); n > 0 {
		last := rs.blocks[n-1]
		if last.ID != block.ID {
			return fmt.Errorf("last block in the current round %s doesn't match block with id %s", last.ID, block.ID)
		}
		rs.blocks = rs.blocks[:n-1]
	}

	ri, err := forging.CalculateRound(block.Height, rs.milestones)
	if err != nil {
		return err
	}

	if ri.NextRound != ri.Round+1 || block.Height == 1 {
		return nil
	}

	rs.evHandler("state: RevertBlock: back to previous round[%d]", ri.Round)

	if err := rs.db.DeleteRound(ri.NextRound); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("deleting round %d: %w", ri.NextRound, err)
	}

	if err := rs.restoreRounds(ri); err != nil {
		return err
	}

	blocks, err := rs.loadBlocks(ctx, ri.RoundHeight, block.Height-1)
	if err != nil {
		return err
	}
	rs.blocks = blocks

	return nil
}

// RestoreCurrentRound loads the delegates of the round the height belongs
// to, and of the round before it, from storage. A round that was never
// stored is built from the current vote balances and saved.
func (rs *RoundState) RestoreCurrentRound(ctx context.Context, height int64) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ri, err := forging.CalculateRound(height, rs.milestones)
	if err != nil {
		return err
	}

	// The next round is already set once the last block of a round landed.
	if height > 1 && ri.NextRound == ri.Round+1 {
		if ri, err = forging.CalculateRound(height+1, rs.milestones); err != nil {
			return err
		}
	}

	if _, err := rs.db.Round(ri.Round); err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("loading round %d: %w", ri.Round, err)
		}

		rs.evHandler("state: RestoreCurrentRound: building round[%d]", ri.Round)

		if err := rs.dpos.BuildVoteBalances(); err != nil {
			return err
		}
		if _, err := rs.dpos.BuildDelegateRanking(ri); err != nil {
			return err
		}
		if err := rs.dpos.SetDelegatesRound(ri); err != nil {
			return err
		}
		if err := rs.saveRound(ri); err != nil {
			return err
		}
	}

	if err := rs.restoreRounds(ri); err != nil {
		return err
	}

	blocks, err := rs.loadBlocks(ctx, ri.RoundHeight, height)
	if err != nil {
		return err
	}
	rs.blocks = blocks

	rs.evHandler("state: RestoreCurrentRound: round[%d] blocks[%d]", ri.Round, len(blocks))

	return nil
}

// =============================================================================

// applyRound closes the current round: it reports the delegates that
// missed the whole round, ranks the delegates again and persists the
// delegates of the next round.
func (rs *RoundState) applyRound(height int64) error {
	ri, err := forging.CalculateRound(height+1, rs.milestones)
	if err != nil {
		return err
	}

	rs.evHandler("state: applyRound: starting round[%d]", ri.Round)

	rs.detectMissedRound()

	if err := rs.dpos.BuildVoteBalances(); err != nil {
		return err
	}
	if _, err := rs.dpos.BuildDelegateRanking(ri); err != nil {
		return err
	}
	if err := rs.dpos.SetDelegatesRound(ri); err != nil {
		return err
	}
	if err := rs.saveRound(ri); err != nil {
		return err
	}

	rs.mu.Lock()
	rs.blocks = nil
	rs.mu.Unlock()

	rs.dispatcher.Dispatch(events.RoundApplied, ri)
	rs.dispatcher.Dispatch(events.RoundCreated, roundDelegates(ri, rs.dpos.ActiveDelegates()))

	return nil
}

// detectMissedBlocks reports each slot between the previous block and this
// one that passed without a block, at most once per forger.
func (rs *RoundState) detectMissedBlocks(previous database.BlockHeader, block database.BlockHeader) error {
	if previous.Height <= 1 {
		return nil
	}

	forgers := rs.dpos.ActiveDelegates()
	if len(forgers) == 0 {
		return nil
	}

	lookup := rs.BlockTimeLookup()

	lastSlot, err := forging.SlotNumber(previous.Timestamp, previous.Height, rs.milestones, lookup)
	if err != nil {
		return err
	}

	currentSlot, err := forging.SlotNumber(block.Timestamp, block.Height, rs.milestones, lookup)
	if err != nil {
		return err
	}

	blockTime := rs.milestones.At(block.Height).BlockTime

	missed := min(currentSlot-lastSlot-1, int64(len(forgers)))
	for i := int64(1); i <= missed; i++ {
		fi, err := forging.CalculateForgingInfo(previous.Timestamp+i*blockTime, block.Height, len(forgers), rs.milestones, lookup)
		if err != nil {
			return err
		}
		delegate := forgers[fi.CurrentForger]

		mb := MissedBlock{
			Slot:      lastSlot + i,
			Username:  wallets.AttrOr(delegate, "delegate.username", ""),
			PublicKey: delegate.PublicKey(),
		}

		rs.evHandler("state: detectMissedBlocks: delegate %s (%s) just missed a block", mb.Username, mb.PublicKey)
		rs.dispatcher.Dispatch(events.ForgerMissing, mb)
	}

	return nil
}

// detectMissedRound reports the delegates of the closing round that forged
// none of its blocks.
func (rs *RoundState) detectMissedRound() {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if len(rs.blocks) == 0 {
		return
	}

	forged := make(map[string]bool, len(rs.blocks))
	for _, b := range rs.blocks {
		forged[b.GeneratorPublicKey] = true
	}

	round := rs.dpos.RoundInfo().Round
	for _, delegate := range rs.dpos.ActiveDelegates() {
		if forged[delegate.PublicKey()] {
			continue
		}

		mr := MissedRound{
			Round:     round,
			Username:  wallets.AttrOr(delegate, "delegate.username", ""),
			PublicKey: delegate.PublicKey(),
		}

		rs.evHandler("state: detectMissedRound: delegate %s (%s) just missed a round", mr.Username, mr.PublicKey)
		rs.dispatcher.Dispatch(events.RoundMissed, mr)
	}
}

// saveRound persists the delegates of the round set in the ranking state.
func (rs *RoundState) saveRound(ri forging.RoundInfo) error {
	if err := rs.db.SaveRound(roundDelegates(ri, rs.dpos.ActiveDelegates())); err != nil {
		return fmt.Errorf("saving round %d: %w", ri.Round, err)
	}
	return nil
}

// restoreRounds installs the stored delegates of the round and of the
// round before it.
func (rs *RoundState) restoreRounds(ri forging.RoundInfo) error {
	current, err := rs.db.Round(ri.Round)
	if err != nil {
		return fmt.Errorf("loading round %d: %w", ri.Round, err)
	}

	active, err := rs.roundWallets(current)
	if err != nil {
		return err
	}

	var previousInfo forging.RoundInfo
	var previous []*wallets.Wallet

	if ri.RoundHeight > 1 {
		if previousInfo, err = forging.CalculateRound(ri.RoundHeight-1, rs.milestones); err != nil {
			return err
		}

		stored, err := rs.db.Round(previousInfo.Round)
		switch {
		case err == nil:
			if previous, err = rs.roundWallets(stored); err != nil {
				return err
			}
		case !errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("loading round %d: %w", previousInfo.Round, err)
		}
	}

	rs.dpos.RestoreRounds(ri, active, previousInfo, previous)

	return nil
}

// roundWallets turns a stored round into the snapshot wallets of its
// delegates.
func (rs *RoundState) roundWallets(round database.Round) ([]*wallets.Wallet, error) {
	active := make([]*wallets.Wallet, len(round.Delegates))
	for i, rd := range round.Delegates {
		w, err := rs.store.FindByPublicKey(rd.PublicKey)
		if err != nil {
			return nil, err
		}

		c := w.Clone()
		if err := c.SetAttribute("delegate.voteBalance", bigOrZero(rd.VoteBalance)); err != nil {
			return nil, err
		}
		if err := c.SetAttribute("delegate.rank", rd.Rank); err != nil {
			return nil, err
		}
		if err := c.SetAttribute("delegate.round", round.Round); err != nil {
			return nil, err
		}
		active[i] = c
	}

	return active, nil
}

// loadBlocks reads the headers of the stored blocks between the heights.
// The genesis block never counts toward a round.
func (rs *RoundState) loadBlocks(ctx context.Context, from int64, to int64) ([]database.BlockHeader, error) {
	if to < 2 {
		return nil, nil
	}

	var headers []database.BlockHeader
	for block, err := range rs.db.Blocks(ctx, max(from, 2)) {
		if err != nil {
			return nil, err
		}
		if block.Height > to {
			break
		}
		headers = append(headers, block.BlockHeader)
	}

	return headers, nil
}

func roundDelegates(ri forging.RoundInfo, active []*wallets.Wallet) database.Round {
	round := database.Round{
		Round:     ri.Round,
		Height:    ri.RoundHeight,
		Delegates: make([]database.RoundDelegate, len(active)),
	}

	for i, d := range active {
		round.Delegates[i] = database.RoundDelegate{
			PublicKey:   d.PublicKey(),
			Username:    wallets.AttrOr(d, "delegate.username", ""),
			VoteBalance: new(big.Int).Set(wallets.BigAttr(d, "delegate.voteBalance")),
			Rank:        wallets.AttrOr(d, "delegate.rank", i+1),
		}
	}

	return round
}
