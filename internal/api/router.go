package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quorumlab/nodegate/internal/logger"
)

// Handler assembles the routable namespace of one access level into a chi
// router: every service's scope is mounted under /api/<service>/<endpoint>,
// wrapped with the per-listener policy from cfg.
func (a *Aggregator) Handler(access Access, cfg ServerConfig, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.JSONPayloadSize > 0 {
		r.Use(middleware.RequestSize(cfg.JSONPayloadSize))
	}
	if cfg.AllowOrigin != nil {
		r.Use(corsHandler(*cfg.AllowOrigin))
	}
	r.Use(accessLog(log))
	r.Use(rewriteEmptyErrors)

	// chi subrouters mounted before the parent's NotFound handler is set do
	// not inherit it, so the catch-alls are installed on every level.
	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(notFoundHandler)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(notFoundHandler)
		r.MethodNotAllowed(notFoundHandler)
		for _, name := range a.ServiceNames() {
			scope := a.services[name].Scope(access)
			endpoints := scope.resolved()
			if len(endpoints) == 0 {
				continue
			}
			r.Route("/"+name, func(r chi.Router) {
				r.NotFound(notFoundHandler)
				r.MethodNotAllowed(notFoundHandler)
				for _, ep := range endpoints {
					r.Method(ep.Mutability.Method(), "/"+ep.Name, ep.Handler)
				}
			})
		}
	})

	return r
}

// notFoundHandler is the catch-all for unmatched routes.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, NotFound().
		WithTitle("Method not found").
		WithDetail(fmt.Sprintf("API endpoint `%s` doesn't exist", r.URL.Path)))
}

// corsHandler enforces the AllowOrigin policy. A whitelist echoes the
// request's Origin header only when it is a member.
func corsHandler(rule AllowOrigin) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
	if rule.IsAny() {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = rule.Hosts()
	}
	return cors.Handler(opts)
}

// statusWriter captures status code and bytes written for access logging.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// accessLog emits one structured line per request.
func accessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(ww, r)

			log.Info("http_request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.status),
				logger.Int("bytes", ww.bytes),
				logger.Duration("duration", time.Since(start)),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// errorInterceptor defers empty-bodied 400/404 responses so they can be
// replaced with structured errors. Responses that carry a body, or any other
// status, pass through untouched.
type errorInterceptor struct {
	http.ResponseWriter
	pending int
	done    bool
}

func (w *errorInterceptor) WriteHeader(code int) {
	if w.done {
		return
	}
	if code == http.StatusBadRequest || code == http.StatusNotFound {
		w.pending = code
		return
	}
	w.done = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *errorInterceptor) Write(b []byte) (int, error) {
	if !w.done {
		if w.pending != 0 {
			w.ResponseWriter.WriteHeader(w.pending)
			w.pending = 0
		}
		w.done = true
	}
	return w.ResponseWriter.Write(b)
}

// rewriteEmptyErrors installs the process-wide catch-all mappings: a bare
// 404 becomes "Method not found" naming the requested path, a bare 400
// becomes "Bad request".
func rewriteEmptyErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &errorInterceptor{ResponseWriter: w}

		next.ServeHTTP(ww, r)

		if ww.done || ww.pending == 0 {
			return
		}
		switch ww.pending {
		case http.StatusNotFound:
			writeError(w, NotFound().
				WithTitle("Method not found").
				WithDetail(fmt.Sprintf("API endpoint `%s` doesn't exist", r.URL.Path)))
		case http.StatusBadRequest:
			writeError(w, BadRequest().WithTitle("Bad request"))
		}
	})
}
