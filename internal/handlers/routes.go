package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Route is one entry of the static route table. Public routes skip the
// auth middleware; Scopes are enforced after authentication. NoRotate
// routes never receive a freshly minted access token.
type Route struct {
	Name        string
	Method      string
	Path        string
	Public      bool
	RateLimited bool
	NoRotate    bool
	Scopes      []string
	Handler     http.HandlerFunc
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Config *config.Config
	Auth   *AuthHandlers
	Users  *UserHandlers
	Tokens middleware.TokenVerifier
	Redis  Pinger
	Logger *logrus.Logger
}

// Routes returns the route table of the service. Paths below the API
// prefix are relative to it.
func Routes(prefix string, auth *AuthHandlers, users *UserHandlers, system *SystemHandlers) []Route {
	return []Route{
		{Name: "health", Method: http.MethodGet, Path: "/health", Public: true, Handler: system.Health},
		{Name: "docs", Method: http.MethodGet, Path: prefix + "/docs", Public: true, Handler: system.Docs},

		{Name: "auth.login", Method: http.MethodPost, Path: prefix + "/auth/login", Public: true, RateLimited: true, Handler: auth.Login},
		{Name: "auth.refresh", Method: http.MethodPost, Path: prefix + "/auth/refresh-token", Public: true, Handler: auth.RefreshToken},
		{Name: "auth.revoke", Method: http.MethodPost, Path: prefix + "/auth/revoke", Public: true, Handler: auth.Revoke},
		{Name: "auth.logout", Method: http.MethodPost, Path: prefix + "/auth/logout", NoRotate: true, Handler: auth.Logout},

		{Name: "users.me", Method: http.MethodGet, Path: prefix + "/users/me", Handler: auth.Me},
		{Name: "users.create", Method: http.MethodPost, Path: prefix + "/users/create", Scopes: []string{"user:create"}, Handler: users.Create},
		{Name: "users.select", Method: http.MethodPost, Path: prefix + "/users/select", Scopes: []string{"user:select"}, Handler: users.Select},
		{Name: "users.update", Method: http.MethodPost, Path: prefix + "/users/update", Scopes: []string{"user:update"}, Handler: users.Update},
		{Name: "users.delete", Method: http.MethodPost, Path: prefix + "/users/delete", Scopes: []string{"user:delete"}, Handler: users.Delete},
	}
}

// PublicResolver reports whether the route matched for a request is
// marked public in the table.
func PublicResolver(routes []Route) func(*http.Request) bool {
	return routeFlag(routes, func(rt Route) bool { return rt.Public })
}

// NoRotateResolver reports whether the matched route opts out of access
// token rotation.
func NoRotateResolver(routes []Route) func(*http.Request) bool {
	return routeFlag(routes, func(rt Route) bool { return rt.NoRotate })
}

func routeFlag(routes []Route, flag func(Route) bool) func(*http.Request) bool {
	set := make(map[string]bool, len(routes))
	for _, rt := range routes {
		set[rt.Name] = flag(rt)
	}
	return func(r *http.Request) bool {
		current := mux.CurrentRoute(r)
		if current == nil {
			return false
		}
		return set[current.GetName()]
	}
}

func NewRouter(deps RouterDeps) *mux.Router {
	cfg := deps.Config
	system := NewSystemHandlers(deps.Redis, deps.Logger)
	routes := Routes(cfg.Server.APIPrefix, deps.Auth, deps.Users, system)
	system.SetRoutes(routes)

	authMiddleware := middleware.NewAuthMiddleware(deps.Tokens, &cfg.Auth, PublicResolver(routes), deps.Logger).
		WithoutRotation(NoRotateResolver(routes))
	guard := middleware.NewScopeGuard(cfg.Auth.AdminScope, cfg.Auth.Debug, deps.Logger)
	loginLimiter := middleware.RateLimit(cfg.RateLimit, middleware.IPKeyExtractor, deps.Logger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.CORSMiddleware(
		cfg.Server.CORSOrigins,
		[]string{cfg.Auth.AccessHeader, cfg.Auth.RefreshHeader},
		[]string{cfg.Auth.NewAccessHeader},
	))
	router.Use(authMiddleware.RequireAuth)

	for _, rt := range routes {
		var h http.Handler = rt.Handler
		if len(rt.Scopes) > 0 {
			h = guard.RequireScopes(rt.Scopes...)(h)
		}
		if rt.RateLimited {
			h = loginLimiter(h)
		}
		router.Handle(rt.Path, preflight(h)).Methods(rt.Method, http.MethodOptions).Name(rt.Name)
	}

	return router
}

// preflight answers OPTIONS requests the CORS middleware did not handle.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
