package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kryptobot/auditchain/foundation/metrics"
	"github.com/kryptobot/auditchain/foundation/web"
)

// Metrics counts served requests by method and resulting status code.
func Metrics() web.Middleware {

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			status := http.StatusOK
			if v, verr := web.GetValues(ctx); verr == nil && v.StatusCode != 0 {
				status = v.StatusCode
			}

			metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()

			return err
		}

		return h
	}

	return m
}
