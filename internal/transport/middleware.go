package transport

import "net/http"

// securityHeadersMiddleware strips version-revealing response headers,
// adapted from the reference's SecurityHeadersMiddleware.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "swarm")
		w.Header().Del("X-Powered-By")
		next.ServeHTTP(w, r)
	})
}
