package state

import (
	"context"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ApplyBlock validates the block against the last block, applies it to the
// wallets and the round, and writes it to storage.
func (s *State) ApplyBlock(ctx context.Context, block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "state.applyBlock", trace.WithAttributes(
		attribute.Int64("height", block.Height),
		attribute.String("id", block.ID),
		attribute.Int("transactions", len(block.Transactions)),
	))
	defer span.End()

	if err := s.applyBlock(ctx, block); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// RevertBlock reverts the last block out of the wallets and the round and
// removes it from storage.
func (s *State) RevertBlock(ctx context.Context, block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "state.revertBlock", trace.WithAttributes(
		attribute.Int64("height", block.Height),
		attribute.String("id", block.ID),
	))
	defer span.End()

	if err := s.revertBlock(ctx, block); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// RevertLastBlock reverts the current last block.
func (s *State) RevertLastBlock(ctx context.Context) (database.Block, error) {
	last := s.LastBlock()
	if err := s.RevertBlock(ctx, last); err != nil {
		return database.Block{}, err
	}
	return last, nil
}

// =============================================================================

func (s *State) applyBlock(ctx context.Context, block database.Block) error {
	s.evHandler("state: ApplyBlock: started: prevBlk[%s]: newBlk[%s]: height[%d]: numTrans[%d]", block.PreviousBlock, block.ID, block.Height, len(block.Transactions))
	defer s.evHandler("state: ApplyBlock: completed: newBlk[%s]", block.ID)
	defer s.pending.Discard()

	s.tipMu.RLock()
	previous, loaded := s.tip, s.loaded
	s.tipMu.RUnlock()

	if !loaded {
		return ErrNotInitialized
	}

	if block.Height != previous.Height+1 {
		return fmt.Errorf("%w: height %d does not follow the last block height %d", ErrInvalidBlock, block.Height, previous.Height)
	}
	if block.PreviousBlock != previous.ID {
		return fmt.Errorf("%w: previous block %s does not match the last block %s", ErrInvalidBlock, block.PreviousBlock, previous.ID)
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	if err := s.blockState.ApplyBlock(ctx, block); err != nil {
		return err
	}

	s.evHandler("state: ApplyBlock: write to disk")

	if err := s.db.SaveBlock(block); err != nil {
		if rerr := s.blockState.RevertBlock(ctx, block); rerr != nil {
			s.evHandler("state: ApplyBlock: ERROR: rollback after failed write: %s", rerr)
		}
		return fmt.Errorf("saving block %d: %w", block.Height, err)
	}
	s.setTip(block)

	if err := s.roundState.ApplyBlock(ctx, previous.BlockHeader, block); err != nil {
		if rerr := s.blockState.RevertBlock(ctx, block); rerr != nil {
			s.evHandler("state: ApplyBlock: ERROR: rollback after round failure: %s", rerr)
		}
		if derr := s.db.DeleteBlock(block); derr != nil {
			s.evHandler("state: ApplyBlock: ERROR: delete after round failure: %s", derr)
		}
		s.setTip(previous)
		return fmt.Errorf("applying round: %w", err)
	}

	s.evHandler("state: ApplyBlock: remove transactions from mempool")

	for _, tx := range block.Transactions {
		s.mempool.Delete(tx)
	}

	s.pending.Flush(s.dispatcher)
	s.dispatcher.Dispatch(events.BlockApplied, block.BlockHeader)

	return nil
}

func (s *State) revertBlock(ctx context.Context, block database.Block) error {
	s.evHandler("state: RevertBlock: started: blk[%s]: height[%d]", block.ID, block.Height)
	defer s.evHandler("state: RevertBlock: completed: blk[%s]", block.ID)
	defer s.pending.Discard()

	if block.Height <= 1 {
		return ErrGenesisRevert
	}

	last := s.LastBlock()
	if block.ID != last.ID {
		return fmt.Errorf("%w: block %s is not the last block %s", ErrInvalidBlock, block.ID, last.ID)
	}

	previous, err := s.db.Block(block.Height - 1)
	if err != nil {
		return fmt.Errorf("loading block %d: %w", block.Height-1, err)
	}

	// The handlers read the history while reverting, so the block stays
	// stored until the wallets are reverted.
	if err := s.blockState.RevertBlock(ctx, block); err != nil {
		return err
	}

	if err := s.roundState.RevertBlock(ctx, block); err != nil {
		return fmt.Errorf("reverting round: %w", err)
	}

	if err := s.db.DeleteBlock(block); err != nil {
		return fmt.Errorf("deleting block %d: %w", block.Height, err)
	}
	s.setTip(previous)

	s.pending.Flush(s.dispatcher)
	s.dispatcher.Dispatch(events.BlockReverted, block.BlockHeader)

	return nil
}
