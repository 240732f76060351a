package handlers

import (
	"context"
	"net/http"
	"strings"

	"tenderhub/models"
)

// Заголовки, которые выставляет шлюз после аутентификации
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

type identityKey struct{}

// WithIdentity кладёт вызывающего в контекст
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom достаёт вызывающего из контекста запроса
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

// Identify отклоняет запросы без пользователя или с неизвестной ролью
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			sendError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header", nil)
			return
		}
		role, err := models.ParseRole(r.Header.Get(UserRoleHeader))
		if err != nil {
			sendError(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}
		ctx := WithIdentity(r.Context(), models.Identity{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
