// Package httpapi is the thin go-chi transport for internal/control's
// Adapter. It knows how to parse and serialise HTTP requests; every
// actual decision is delegated to the Adapter.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/TUM-Dev/VMP/internal/control"
	"github.com/TUM-Dev/VMP/internal/logging"
)

// Config configures the router's transport-level concerns. Everything
// else lives in the Adapter it wraps.
type Config struct {
	HTTPAuth     bool
	HTTPUsername string
	HTTPPassword string

	// RecordingRateLimit caps POST /api/v1/recordings per remote
	// address, requests per minute. Zero uses the package default.
	RecordingRateLimit int
}

const defaultRecordingRateLimit = 60

// NewRouter builds the control plane's HTTP handler over adapter.
// /healthz, /readyz, and /api/v1/metrics are never subject to basic
// auth or rate limiting — probes and scrapers need to reach them
// unconditionally.
func NewRouter(adapter *control.Adapter, cfg Config) chi.Router {
	limit := cfg.RecordingRateLimit
	if limit <= 0 {
		limit = defaultRecordingRateLimit
	}

	h := &handlers{adapter: adapter}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/api/v1/metrics", h.metrics)

	r.Group(func(api chi.Router) {
		if cfg.HTTPAuth {
			api.Use(basicAuth(cfg.HTTPUsername, cfg.HTTPPassword))
		}

		api.Get("/api/v1/config", h.getConfig)
		api.Get("/api/v1/channels", h.listChannels)
		api.Get("/api/v1/channel/{name}/graph", h.channelGraph)
		api.Get("/api/v1/mountpoint/{name}/graph", h.mountpointGraph)
		api.Get("/api/v1/profiles", h.profileDiagnostics)
		api.Get("/api/v1/recordings", h.listRecordings)

		api.With(recordingRateLimit(limit)).Post("/api/v1/recordings", h.scheduleRecording)
	})

	return r
}

// recordingRateLimit wraps httprate.Limit with the control plane's fixed
// contract: mutating endpoints are rate limited by remote address, reads
// are not.
func recordingRateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitedHandler),
	)
}

func rateLimitedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many recording requests")
}

// requestLogger wraps the response writer to capture the status code,
// then logs once per request with structured fields.
func requestLogger(next http.Handler) http.Handler {
	logger := logging.WithComponent("httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
