// Package web contains a small web framework extension.
package web

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// A Handler is a type that handles a http request within our own little mini
// framework.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// App is the entrypoint into our application and what configures our context
// object for each of our http handlers.
type App struct {
	*httptreemux.ContextMux
	shutdown chan os.Signal
	tracer   trace.Tracer
	mw       []Middleware
}

// NewApp creates an App value that handle a set of routes for the application.
// Every request runs inside a span of the global tracer provider.
func NewApp(shutdown chan os.Signal, mw ...Middleware) *App {
	return &App{
		ContextMux: httptreemux.NewContextMux(),
		shutdown:   shutdown,
		tracer:     otel.Tracer("web"),
		mw:         mw,
	}
}

// SignalShutdown is used to gracefully shut down the app when an integrity
// issue is identified.
func (a *App) SignalShutdown() {
	a.shutdown <- syscall.SIGTERM
}

// Handle sets a handler function for a given HTTP method and path pair
// to the application server mux.
func (a *App) Handle(method string, group string, path string, handler Handler, mw ...Middleware) {

	// First wrap handler specific middleware around this handler.
	handler = wrapMiddleware(mw, handler)

	// Add the application's general middleware to the handler chain.
	handler = wrapMiddleware(a.mw, handler)

	finalPath := path
	if group != "" {
		finalPath = "/" + group + path
	}

	// The function to execute for each request.
	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.tracer.Start(r.Context(), method+" "+finalPath)
		defer span.End()

		// A sampled span supplies the trace id, otherwise the request gets
		// its own.
		traceID := uuid.NewString()
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}

		v := Values{
			TraceID: traceID,
			Now:     time.Now().UTC(),
		}
		ctx = context.WithValue(ctx, key, &v)

		// Call the wrapped handler functions.
		err := handler(ctx, w, r)
		span.SetAttributes(attribute.Int("http.status_code", v.StatusCode))

		if err != nil && validateShutdown(err) {
			a.SignalShutdown()
		}
	}

	a.ContextMux.Handle(method, finalPath, h)
}
