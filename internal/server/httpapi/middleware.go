package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authsync/internal/common"
)

type ctxKey string

const tokenKey ctxKey = "bearerToken"

// requireBearer rejects requests without a bearer token and stores the raw
// token in the request context. Verification is left to the service.
func (s *HTTPServer) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}
		token := strings.TrimSpace(header[len(common.BearerPrefix):])
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}
