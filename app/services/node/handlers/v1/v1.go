// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ancourn/kaldr1-sub002/app/services/node/handlers/v1/private"
	"github.com/ancourn/kaldr1-sub002/app/services/node/handlers/v1/public"
	"github.com/ancourn/kaldr1-sub002/app/services/node/handlers/v1/rpc"
	"github.com/ancourn/kaldr1-sub002/business/core/archive"
	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/audit"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ancourn/kaldr1-sub002/foundation/metrics"
	"github.com/ancourn/kaldr1-sub002/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log      *zap.SugaredLogger
	State    *state.State
	Keystore *keystore.KeyStore
	Evts     *events.Bus
	Archive  *archive.Core
	Audit    *audit.Audit
	Metrics  *metrics.Metrics
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:      cfg.Log,
		State:    cfg.State,
		Keystore: cfg.Keystore,
		WS:       websocket.Upgrader{},
		Evts:     cfg.Evts,
		Archive:  cfg.Archive,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list/:account", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
	app.Handle(http.MethodGet, version, "/blocks/list/:account", pbl.BlocksByAccount)

	// Economic views.
	app.Handle(http.MethodGet, version, "/supply", pbl.Supply)
	app.Handle(http.MethodGet, version, "/fees", pbl.Fees)
	app.Handle(http.MethodGet, version, "/staking/positions", pbl.StakingPositions)
	app.Handle(http.MethodGet, version, "/staking/positions/:account", pbl.StakingPositions)
	app.Handle(http.MethodGet, version, "/bridge/transfers", pbl.BridgeTransfers)
	app.Handle(http.MethodGet, version, "/bridge/transfers/:id", pbl.BridgeTransfers)
	app.Handle(http.MethodGet, version, "/bridge/pools", pbl.BridgePools)
	app.Handle(http.MethodGet, version, "/gov/proposals", pbl.Proposals)
	app.Handle(http.MethodGet, version, "/gov/proposals/:id", pbl.Proposals)

	// Archive views backed by the sqlite read model.
	app.Handle(http.MethodGet, version, "/archive/blocks/:from/:to", pbl.ArchiveBlocks)
	app.Handle(http.MethodGet, version, "/archive/tx/:account", pbl.ArchiveTransactions)
	app.Handle(http.MethodGet, version, "/archive/metrics", pbl.ArchiveMetrics)
	app.Handle(http.MethodGet, version, "/archive/nodes", pbl.ArchiveNodes)
	app.Handle(http.MethodGet, version, "/archive/identities", pbl.ArchiveIdentities)

	// JSON-RPC endpoint. Bound at the root as well since ethereum wallets
	// post to / by convention.
	rpch := rpc.Handlers{
		Log:      cfg.Log,
		State:    cfg.State,
		Keystore: cfg.Keystore,
		Audit:    cfg.Audit,
		Metrics:  cfg.Metrics,
	}
	app.Handle(http.MethodPost, "", "/", rpch.Dispatch)
	app.Handle(http.MethodPost, version, "/rpc", rpch.Dispatch)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
}
