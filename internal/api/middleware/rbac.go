package middleware

import (
	"net/http"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
)

// Authorize returns middleware that rejects callers whose role may not
// perform action. It is meant for actions that involve no resource
// ownership; ownership-dependent checks happen in the services.
func Authorize(action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if role == "" || !access.Can(role, action, access.None) {
				respond.Fail(w, http.StatusForbidden, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
