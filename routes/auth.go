package routes

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"safemigrator/logger"
	"safemigrator/utils"
)

type claimsKey struct{}

// verifyJWT verifies the bearer token of the request and returns the claims
func (s *Server) verifyJWT(r *http.Request) (*utils.AdminClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	return utils.VerifyAdminToken(token, s.auth)
}

func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.verifyJWT(r)
			if err != nil {
				logger.Warnf("Rejected request to %s: %v", r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !claims.Can(scope) {
				logger.Warnf("Token of %q lacks %s scope for %s", claims.Subject, scope, r.URL.Path)
				writeError(w, http.StatusForbidden, "token lacks "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// subject returns who made the request, for the logs.
func subject(r *http.Request) string {
	if c, ok := r.Context().Value(claimsKey{}).(*utils.AdminClaims); ok {
		return c.Subject
	}
	return ""
}
