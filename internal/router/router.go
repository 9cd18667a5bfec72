package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nowplaying/playerapi/internal/config"
	"github.com/nowplaying/playerapi/internal/handlers"
	"github.com/nowplaying/playerapi/internal/metrics"
	"github.com/nowplaying/playerapi/internal/middleware"
)

// Route names, matched against the final segment of the request path so the
// API can sit behind any path prefix.
const (
	RouteStatus    = "status"
	RouteLyric     = "lyric"
	RouteSubscribe = "subscribe-player-status"
)

// New builds the API handler. rl may be nil to disable rate limiting.
func New(cfg *config.Config, h *handlers.PlayerHandler, m *metrics.Metrics, rl *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	if rl != nil {
		r.Use(rl.Middleware)
	}

	routes := map[string]http.HandlerFunc{
		RouteStatus:    h.Status,
		RouteLyric:     h.Lyric,
		RouteSubscribe: h.Subscribe,
	}

	dispatch := func(w http.ResponseWriter, req *http.Request) {
		segment := FinalSegment(req.URL.Path)
		if fn, ok := routes[segment]; ok {
			m.Request(segment)
			fn(w, req)
			return
		}
		m.Request("forbidden")
		h.Forbidden(w, req)
	}

	r.HandleFunc("/*", dispatch)
	r.NotFound(h.Forbidden)
	r.MethodNotAllowed(h.Forbidden)

	return r
}

// FinalSegment returns the part of path after its last slash.
// "/api/v2/status" yields "status"; "/status/" yields "".
func FinalSegment(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
