// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/kryptobot/auditchain/app/services/ledgerd/handlers/v1/private"
	"github.com/kryptobot/auditchain/app/services/ledgerd/handlers/v1/public"
	"github.com/kryptobot/auditchain/foundation/events"
	"github.com/kryptobot/auditchain/foundation/ledger/state"
	"github.com/kryptobot/auditchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/events/pending", pbl.Pending)
	app.Handle(http.MethodPost, version, "/events/trade", pbl.RecordTrade)
	app.Handle(http.MethodPost, version, "/events/order", pbl.RecordOrder)
	app.Handle(http.MethodPost, version, "/events/system-change", pbl.RecordSystemChange)
	app.Handle(http.MethodPost, version, "/events/login", pbl.RecordLogin)
	app.Handle(http.MethodPost, version, "/events/config-change", pbl.RecordConfigChange)
	app.Handle(http.MethodGet, version, "/audit-trail", pbl.AuditTrail)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.BlocksList)
	app.Handle(http.MethodGet, version, "/blocks/:number", pbl.BlockByNumber)
}

// PrivateRoutes binds all the version 1 operator routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/stats", prv.Stats)
	app.Handle(http.MethodGet, version, "/node/export", prv.Export)
	app.Handle(http.MethodPost, version, "/node/mine", prv.Mine)
	app.Handle(http.MethodPost, version, "/node/verify", prv.Verify)
	app.Handle(http.MethodPost, version, "/node/prune", prv.Prune)
	app.Handle(http.MethodPost, version, "/node/mining/resume", prv.ResumeMining)
}
