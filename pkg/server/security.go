package server

import (
	"net/http"
	"strings"
)

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME-sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// the files are fetched by pages on other origins
		if strings.HasPrefix(r.URL.Path, s.pathPrefix) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("X-Frame-Options", "DENY")
		}

		next.ServeHTTP(w, r)
	})
}
