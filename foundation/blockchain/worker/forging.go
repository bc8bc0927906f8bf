package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
)

// CORE NOTE: The forging operation is managed by this function which runs on
// its own goroutine. The loop wakes up at the start of every forging slot and
// asks the state who owns the slot. When the slot belongs to the delegate of
// this node and more than half of the slot is left, the node forges the next
// block with the best transactions from the mempool.

// forgingOperations handles forging.
func (w *Worker) forgingOperations() {
	w.evHandler("worker: forgingOperations: G started")
	defer w.evHandler("worker: forgingOperations: G completed")

	timer := time.NewTimer(w.untilNextSlot())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if !w.isShutdown() {
				w.runForgingOperation()
			}
			timer.Reset(w.untilNextSlot())

		case <-w.forge:
			if !w.isShutdown() {
				w.runForgingOperation()
			}

		case <-w.shut:
			w.evHandler("worker: forgingOperations: received shut signal")
			return
		}
	}
}

// runForgingOperation forges the next block when the current slot belongs
// to this node.
func (w *Worker) runForgingOperation() {
	if w.key == nil {
		return
	}

	ts := w.timestamp()

	info, err := w.state.ForgingInfo(ts)
	if err != nil {
		w.evHandler("worker: runForgingOperation: FORGING: ERROR: %s", err)
		return
	}

	if info.CurrentForger.PublicKey != w.publicKey {
		w.evHandler("worker: runForgingOperation: FORGING: slot[%d] belongs to %s", info.BlockTimestamp, info.CurrentForger.Username)
		return
	}

	w.evHandler("worker: runForgingOperation: FORGING: started: slot[%d]", info.BlockTimestamp)

	t := time.Now()
	block, err := w.state.ForgeBlock(context.Background(), w.key, ts)
	duration := time.Since(t)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrSlotTaken), errors.Is(err, state.ErrSlotClosed):
			w.evHandler("worker: runForgingOperation: FORGING: WARNING: %s", err)
		default:
			w.evHandler("worker: runForgingOperation: FORGING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runForgingOperation: FORGING: block[%s] height[%d] trans[%d] duration[%v]", block.ID, block.Height, len(block.Transactions), duration)
}

// untilNextSlot returns the time left before the next forging slot starts.
func (w *Worker) untilNextSlot() time.Duration {
	blockTime := w.state.Milestone().BlockTime
	if blockTime <= 0 {
		blockTime = 1
	}

	elapsed := time.Since(w.epoch)
	slot := time.Duration(blockTime) * time.Second

	wait := slot - elapsed%slot
	if wait <= 0 {
		wait = slot
	}

	return wait
}
