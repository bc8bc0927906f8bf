// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/dposledger/business/web/errs"
	"github.com/ardanlabs/dposledger/foundation/blockchain/database"
	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/blockchain/wallets"
	"github.com/ardanlabs/dposledger/foundation/events"
	"github.com/ardanlabs/dposledger/foundation/nameservice"
	"github.com/ardanlabs/dposledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the tip of the ledger.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	last := h.State.LastBlock()

	st := status{
		Height:    last.Height,
		BlockID:   last.ID,
		Round:     h.State.RoundInfo().Round,
		Mempool:   h.State.MempoolLength(),
		Delegates: len(h.State.ActiveDelegates()),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// =============================================================================

// LastBlock returns the last applied block.
func (h Handlers) LastBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.LastBlock(), http.StatusOK)
}

// Block returns the block stored at the height.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := web.ParamInt64(r, "height")
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, err := h.State.Block(height)
	if err != nil {
		return fmt.Errorf("block[%d]: %w", height, err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Transaction returns a forged transaction with the height of its block.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	trn, height, err := h.State.Transaction(id)
	if err != nil {
		return fmt.Errorf("transaction[%s]: %w", id, err)
	}

	return web.Respond(ctx, w, h.toTx(trn, height), http.StatusOK)
}

// =============================================================================

// Wallet returns the wallet of an address, a public key or a delegate
// username.
func (h Handlers) Wallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	var wlt *wallets.Wallet
	var err error

	switch {
	case strings.HasPrefix(id, "0x"):
		wlt, err = h.State.Wallet(id)
	case len(id) == 66:
		wlt, err = h.State.WalletByPublicKey(id)
	default:
		wlt, err = h.State.WalletByUsername(id)
	}
	if err != nil {
		return err
	}

	resp := wallet{
		Name:   h.NS.Lookup(wlt.Address()),
		Wallet: wlt,
	}
	if resp.Name == wlt.Address() {
		resp.Name = ""
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Delegates returns a page of the ranked delegates.
func (h Handlers) Delegates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, err := web.ParsePage(r)
	if err != nil {
		return err
	}

	all := h.State.Delegates()

	dels := make([]delegate, len(all))
	for i, d := range all {
		dels[i] = toDelegate(d)
	}

	return web.RespondPage(ctx, w, dels, page, http.StatusOK)
}

// ActiveDelegates returns the delegates of the current round in forging
// order.
func (h Handlers) ActiveDelegates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	active := h.State.ActiveDelegates()

	dels := make([]delegate, len(active))
	for i, d := range active {
		dels[i] = toDelegate(d)
	}

	return web.Respond(ctx, w, dels, http.StatusOK)
}

// =============================================================================

// ForgingInfo returns the forgers of a slot. The slot defaults to the one
// of the current time.
func (h Handlers) ForgingInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ts := int64(time.Since(h.State.Genesis().Date) / time.Second)

	if v := r.URL.Query().Get("timestamp"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return web.FieldErrors{{Field: "timestamp", Error: "timestamp must be a number"}}
		}
		ts = n
	}

	info, err := h.State.ForgingInfo(ts)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// CurrentRound returns the round of the last block.
func (h Handlers) CurrentRound(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RoundInfo(), http.StatusOK)
}

// Round returns the stored delegates of a round.
func (h Handlers) Round(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := web.ParamInt64(r, "round")
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	round, err := h.State.Round(n)
	if err != nil {
		return fmt.Errorf("round[%d]: %w", n, err)
	}

	return web.Respond(ctx, w, round, http.StatusOK)
}

// =============================================================================

// Mempool returns a page of the pooled transactions, optionally only the
// ones sent by a public key.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, err := web.ParsePage(r)
	if err != nil {
		return err
	}

	sender := r.URL.Query().Get("sender")

	var trans []tx
	for _, trn := range h.State.Mempool() {
		if sender != "" && trn.SenderPublicKey != sender {
			continue
		}
		trans = append(trans, h.toTx(trn, 0))
	}

	return web.RespondPage(ctx, w, trans, page, http.StatusOK)
}

// SubmitTransaction adds a signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var trn database.Transaction
	if err := web.Decode(r, &trn); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "id", trn.ID, "type", trn.Type, "sender", trn.SenderPublicKey, "nonce", trn.NonceOrZero().Dec())

	if err := h.State.UpsertMempool(ctx, trn); err != nil {
		return err
	}

	resp := submitted{
		ID:     trn.ID,
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// =============================================================================

func (h Handlers) toTx(trn database.Transaction, height int64) tx {
	t := tx{
		Transaction: trn,
		Height:      height,
	}

	if address, err := signature.AddressFromPublicKey(trn.SenderPublicKey); err == nil {
		if name := h.NS.Lookup(address); name != address {
			t.SenderName = name
		}
	}

	return t
}
