// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"crypto/ecdsa"
	"net/http"

	"github.com/ardanlabs/dposledger/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/dposledger/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
	"github.com/ardanlabs/dposledger/foundation/events"
	"github.com/ardanlabs/dposledger/foundation/nameservice"
	"github.com/ardanlabs/dposledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
	Key   *ecdsa.PrivateKey
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/blocks/last", pbl.LastBlock)
	app.Handle(http.MethodGet, version, "/blocks/:height", pbl.Block)
	app.Handle(http.MethodGet, version, "/transactions/:id", pbl.Transaction)
	app.Handle(http.MethodGet, version, "/wallets/:id", pbl.Wallet)
	app.Handle(http.MethodGet, version, "/delegates", pbl.Delegates)
	app.Handle(http.MethodGet, version, "/delegates/active", pbl.ActiveDelegates)
	app.Handle(http.MethodGet, version, "/forging", pbl.ForgingInfo)
	app.Handle(http.MethodGet, version, "/rounds/current", pbl.CurrentRound)
	app.Handle(http.MethodGet, version, "/rounds/:round", pbl.Round)
	app.Handle(http.MethodGet, version, "/mempool", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/mempool", pbl.SubmitTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Key:   cfg.Key,
	}

	app.Handle(http.MethodPost, version, "/node/blocks/next", prv.ForgeNextBlock)
	app.Handle(http.MethodPost, version, "/node/blocks/revert", prv.RevertLastBlock)
	app.Handle(http.MethodPost, version, "/node/reset", prv.Reset)
	app.Handle(http.MethodDelete, version, "/node/mempool/:id", prv.DeleteTransaction)
}
