package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenderhub/internal/handlers"
	"tenderhub/models"
)

// WithChiURLParams подставляет параметры пути в контекст chi запроса для тестов.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithIdentity кладёт вызывающего в контекст, как это делает middleware Identify.
func WithIdentity(req *http.Request, userID string, role models.Role) *http.Request {
	ctx := handlers.WithIdentity(req.Context(), models.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// SetIdentityHeaders выставляет заголовки шлюза для запросов через роутер.
func SetIdentityHeaders(req *http.Request, userID string, role models.Role) *http.Request {
	req.Header.Set(handlers.UserIDHeader, userID)
	req.Header.Set(handlers.UserRoleHeader, string(role))
	return req
}
