package middleware

import (
	"net/http"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// RequireRole allows the request only when the authenticated role is one of
// the given roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[GetRole(r.Context())]; !ok {
				jsonForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCanWrite rejects viewer accounts on mutating endpoints.
func RequireCanWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch GetRole(r.Context()) {
		case models.RoleAdmin, models.RoleOperator:
			next.ServeHTTP(w, r)
		default:
			jsonForbidden(w)
		}
	})
}
