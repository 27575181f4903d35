// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kryptobot/auditchain/business/web/errs"
	"github.com/kryptobot/auditchain/foundation/events"
	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/ledger/state"
	"github.com/kryptobot/auditchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of audit ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide ledger activity to a client.
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

// Genesis returns the chain parameters.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// =============================================================================

// RecordTrade validates and queues a trade event.
func (h Handlers) RecordTrade(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model newTrade
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	evt, err := h.State.RecordTrade(model.ID, model.Trade)
	return h.recordResponse(ctx, w, evt, err)
}

// RecordOrder validates and queues an order event.
func (h Handlers) RecordOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model newOrder
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	evt, err := h.State.RecordOrder(model.ID, model.Order)
	return h.recordResponse(ctx, w, evt, err)
}

// RecordSystemChange validates and queues a system change event.
func (h Handlers) RecordSystemChange(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model newSystemChange
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	evt, err := h.State.RecordSystemChange(model.ID, model.SystemChange)
	return h.recordResponse(ctx, w, evt, err)
}

// RecordLogin validates and queues a login event.
func (h Handlers) RecordLogin(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model newLogin
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	evt, err := h.State.RecordLogin(model.ID, model.Login)
	return h.recordResponse(ctx, w, evt, err)
}

// RecordConfigChange validates and queues a config change event.
func (h Handlers) RecordConfigChange(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model newConfigChange
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	evt, err := h.State.RecordConfigChange(model.ID, model.ConfigChange)
	return h.recordResponse(ctx, w, evt, err)
}

// recordResponse maps the outcome of a record call to the client response.
func (h Handlers) recordResponse(ctx context.Context, w http.ResponseWriter, evt event.Event, err error) error {
	if err != nil {
		if errors.Is(err, event.ErrInvalidEvent) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	resp := recorded{
		Status: "event queued",
		Event:  evt,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// =============================================================================

// Pending returns a read-only snapshot of the queued events.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return errs.NewTrusted(fmt.Errorf("invalid limit %q", value), http.StatusBadRequest)
		}
		limit = parsed
	}

	pending, err := h.State.PendingEvents(limit)
	if err != nil {
		return err
	}

	count, err := h.State.PendingCount()
	if err != nil {
		return err
	}

	resp := struct {
		Count  int           `json:"count"`
		Events []event.Event `json:"events"`
	}{
		Count:  count,
		Events: pending,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// AuditTrail returns a page of committed events filtered by kind and time
// range, with an opaque cursor for the next page.
func (h Handlers) AuditTrail(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	filter, err := parseTrailFilter(r)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	page, err := h.State.AuditTrail(filter)
	if err != nil {
		if errors.Is(err, state.ErrInvalidCursor) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	return web.Respond(ctx, w, page, http.StatusOK)
}

// parseTrailFilter reads the audit trail query parameters.
func parseTrailFilter(r *http.Request) (state.TrailFilter, error) {
	values := r.URL.Query()

	filter := state.TrailFilter{
		Cursor: values.Get("cursor"),
	}

	if value := values.Get("kind"); value != "" {
		kind, err := event.ParseKind(value)
		if err != nil {
			return state.TrailFilter{}, err
		}
		filter.Kind = &kind
	}

	if value := values.Get("start"); value != "" {
		start, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return state.TrailFilter{}, fmt.Errorf("invalid start %q: %w", value, err)
		}
		filter.Start = start
	}

	if value := values.Get("end"); value != "" {
		end, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return state.TrailFilter{}, fmt.Errorf("invalid end %q: %w", value, err)
		}
		filter.End = end
	}

	if value := values.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil {
			return state.TrailFilter{}, fmt.Errorf("invalid limit %q", value)
		}
		filter.Limit = limit
	}

	return filter, nil
}

// =============================================================================

// BlocksList returns a page of committed blocks with their details.
func (h Handlers) BlocksList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	values := r.URL.Query()

	page := 1
	if value := values.Get("page"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return errs.NewTrusted(fmt.Errorf("invalid page %q", value), http.StatusBadRequest)
		}
		page = parsed
	}

	limit := 0
	if value := values.Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return errs.NewTrusted(fmt.Errorf("invalid limit %q", value), http.StatusBadRequest)
		}
		limit = parsed
	}

	blocks, total, err := h.State.BlocksPage(page, limit)
	if err != nil {
		return err
	}

	resp := struct {
		Total  uint64               `json:"total"`
		Page   int                  `json:"page"`
		Blocks []database.BlockData `json:"blocks"`
	}{
		Total:  total,
		Page:   page,
		Blocks: blocks,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByNumber returns the stored contents of the specified block.
func (h Handlers) BlockByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	number, err := strconv.ParseUint(web.Param(r, "number"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block number %q", web.Param(r, "number")), http.StatusBadRequest)
	}

	blockData, err := h.State.GetBlock(number)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}
