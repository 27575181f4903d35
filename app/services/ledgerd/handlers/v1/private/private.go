// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kryptobot/auditchain/business/web/errs"
	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/state"
	"github.com/kryptobot/auditchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Stats returns block and event counts, the pool depth, and the cached
// result of the most recent verification.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.State.Stats()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, stats, http.StatusOK)
}

// Mine runs a single mining attempt on the caller's behalf, blocking until
// it commits, times out, or finds the pool empty.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.ForceMine(ctx)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoPendingEvents):
			resp := struct {
				Status string `json:"status"`
			}{
				Status: "no pending events",
			}
			return web.Respond(ctx, w, resp, http.StatusOK)

		case errors.Is(err, state.ErrMiningTimeout):
			return errs.NewTrusted(err, http.StatusServiceUnavailable)

		case errors.Is(err, state.ErrMiningHalted):
			return errs.NewTrusted(err, http.StatusConflict)
		}

		return err
	}

	resp := struct {
		Status string             `json:"status"`
		Block  database.BlockData `json:"block"`
	}{
		Status: "block mined",
		Block:  database.NewBlockData(block),
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Verify walks the committed chain checking every block's hash, difficulty,
// linkage, and index. An integrity violation halts mining and is reported
// with the failing block.
func (h Handlers) Verify(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	result, err := h.State.VerifyChain()
	if err != nil {
		var cie *database.ChainIntegrityError
		if errors.As(err, &cie) {
			return errs.NewTrusted(cie, http.StatusConflict)
		}
		return err
	}

	resp := struct {
		Status string                `json:"status"`
		Result database.VerifyResult `json:"result"`
	}{
		Status: "chain verified",
		Result: result,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Export streams the committed chain in the requested format. The default
// is json; csv produces one row per committed event.
func (h Handlers) Export(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = state.FormatJSON
	}

	switch format {
	case state.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case state.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		return errs.NewTrusted(fmt.Errorf("unknown export format %q", format), http.StatusBadRequest)
	}

	// The export streams directly so the chain never has to fit in memory.
	web.SetStatusCode(ctx, http.StatusOK)
	w.WriteHeader(http.StatusOK)

	return h.State.ExportChain(w, format)
}

// Prune removes committed blocks older than the specified cutoff, keeping
// a checkpoint so verification can still anchor. This is irreversible.
func (h Handlers) Prune(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var model struct {
		OlderThan time.Time `json:"older_than"`
	}
	if err := web.Decode(r, &model); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if model.OlderThan.IsZero() {
		return errs.NewTrusted(errors.New("older_than is required"), http.StatusBadRequest)
	}

	pruned, err := h.State.Prune(model.OlderThan)
	if err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
		Pruned uint64 `json:"pruned"`
	}{
		Status: "prune complete",
		Pruned: pruned,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ResumeMining re-enables mining after an operator has investigated an
// integrity failure.
func (h Handlers) ResumeMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.ResumeMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining resumed",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
