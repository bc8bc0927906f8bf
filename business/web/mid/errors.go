package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/dposledger/business/web/errs"
	"github.com/ardanlabs/dposledger/foundation/web"
	"go.uber.org/zap"
)

// Errors handles errors coming out of the call chain. Errors of the ledger
// are turned into their response, anything else is a 500 and stays in the
// logs.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			log.Errorw("ERROR", "traceid", web.GetTraceID(ctx), "ERROR", err)

			resp, status, _ := errs.Classify(err)
			if err := web.Respond(ctx, w, resp, status); err != nil {
				return err
			}

			// A shutdown error goes back to the base handler so the service
			// can be brought down.
			if web.IsShutdown(err) {
				return err
			}

			return nil
		}

		return h
	}

	return m
}
