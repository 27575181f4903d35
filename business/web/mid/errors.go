package mid

import (
	"context"
	"net/http"

	"github.com/kryptobot/auditchain/business/web/errs"
	"github.com/kryptobot/auditchain/foundation/validate"
	"github.com/kryptobot/auditchain/foundation/web"
	"go.uber.org/zap"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform
// way. Unexpected errors (status >= 500) are logged.
func Errors(log *zap.SugaredLogger) web.Middleware {

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			v, verr := web.GetValues(ctx)
			if verr != nil {
				return web.NewShutdownError("web value missing from context")
			}

			log.Errorw("ERROR", "traceid", v.TraceID, "message", err)

			var resp errs.Response
			var status int

			switch {
			case validate.IsFieldErrors(err):
				fieldErrors := validate.GetFieldErrors(err)
				resp = errs.Response{
					Error:  "data validation error",
					Fields: fieldErrors.Fields(),
				}
				status = http.StatusBadRequest

			case errs.IsTrusted(err):
				trusted := errs.GetTrusted(err)

				if fieldErrors := validate.GetFieldErrors(trusted.Err); fieldErrors != nil {
					resp = errs.Response{
						Error:  "data validation error",
						Fields: fieldErrors.Fields(),
					}
				} else {
					resp = errs.Response{
						Error: trusted.Error(),
					}
				}
				status = trusted.Status

			default:
				resp = errs.Response{
					Error: http.StatusText(http.StatusInternalServerError),
				}
				status = http.StatusInternalServerError
			}

			if err := web.Respond(ctx, w, resp, status); err != nil {
				return err
			}

			// If we receive the shutdown err we need to return it back to
			// the base handler to shutdown the service.
			if web.IsShutdown(err) {
				return err
			}

			return nil
		}

		return h
	}

	return m
}
