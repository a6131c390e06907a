package web

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// withRequestID tags every request with a short id, echoed in the
// X-Request-ID response header and attached to the request-scoped logger.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)

		log := s.log.With().Str("request_id", requestID).Logger()
		r = r.WithContext(log.WithContext(r.Context()))

		next.ServeHTTP(w, r)
	})
}

// withAuth validates the Bearer token against the configured token set.
// An empty token set disables authentication.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Invalid or missing Bearer token.")
			return
		}
		if _, valid := s.tokens[token]; !valid {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Invalid or missing Bearer token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
