package middleware

import (
	"net/http"
)

// CORSMiddleware handles Cross-Origin Resource Sharing headers so browser
// overlays can poll the API or open an EventSource from another origin.
// Requests without an Origin header pass through untouched. An allowed
// origin of "*" admits every origin. The middleware only adds headers and
// never answers a request itself.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowedMap := make(map[string]bool)
	allowAny := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAny = true
		}
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			switch {
			case allowAny:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowedMap[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Cache-Control, Last-Event-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")

			// Preflights are routed like any other request: served paths answer
			// normally and everything else is still Forbidden.
			next.ServeHTTP(w, r)
		})
	}
}
