// Package private maintains the group of handlers for the operators of the
// node.
package private

import (
	"context"
	"crypto/ecdsa"
	"net/http"

	"github.com/ardanlabs/dposledger/business/web/errs"
	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/nameservice"
	"github.com/ardanlabs/dposledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Key   *ecdsa.PrivateKey
}

type blockResult struct {
	ID           string `json:"id"`
	Height       int64  `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	Generator    string `json:"generator"`
	Transactions int    `json:"transactions"`
}

// ForgeNextBlock forges the block of the slot that follows the last block.
// The key of the slot's delegate is taken from the name service, falling
// back to the key of the node.
func (h Handlers) ForgeNextBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	last := h.State.LastBlock()
	next := last.Timestamp + h.State.Milestone().BlockTime

	info, err := h.State.ForgingInfo(next)
	if err != nil {
		return err
	}

	key, err := h.NS.Key(info.CurrentForger.Username)
	if err != nil {
		key = h.Key
	}
	if key == nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	block, err := h.State.ForgeNextBlock(ctx, key)
	if err != nil {
		return err
	}

	h.Log.Infow("forge next block", "traceid", v.TraceID, "height", block.Height, "id", block.ID, "forger", info.CurrentForger.Username)

	return web.Respond(ctx, w, toResult(block), http.StatusOK)
}

// RevertLastBlock reverts the last block of the ledger.
func (h Handlers) RevertLastBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	block, err := h.State.RevertLastBlock(ctx)
	if err != nil {
		return err
	}

	h.Log.Infow("revert last block", "traceid", v.TraceID, "height", block.Height, "id", block.ID)

	return web.Respond(ctx, w, toResult(block), http.StatusOK)
}

// Reset wipes the ledger back to the genesis block.
func (h Handlers) Reset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("reset", "traceid", v.TraceID, "height", h.State.LastBlock().Height)

	if err := h.State.Reset(ctx); err != nil {
		return err
	}

	return web.Respond(ctx, w, toResult(h.State.LastBlock()), http.StatusOK)
}

// DeleteTransaction drops a transaction from the mempool.
func (h Handlers) DeleteTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	if !h.State.DeleteMempool(id) {
		return errs.NewTrusted(database.ErrNotFound, http.StatusNotFound)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

func toResult(block database.Block) blockResult {
	return blockResult{
		ID:           block.ID,
		Height:       block.Height,
		Timestamp:    block.Timestamp,
		Generator:    block.GeneratorPublicKey,
		Transactions: len(block.Transactions),
	}
}
