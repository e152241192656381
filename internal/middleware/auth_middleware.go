package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/models"
	"github.com/qcom/authgate/internal/service"
	"github.com/sirupsen/logrus"
)

// TokenVerifier is the part of the token service the middleware needs.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenType models.TokenType, token string) (*service.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (string, *service.Claims, error)
}

type contextKey struct{ name string }

var identityKey = &contextKey{"identity"}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}

// AuthMiddleware authenticates every non-public request with the access
// token header, falling back to the refresh header when the access token
// has expired or been revoked.
type AuthMiddleware struct {
	tokens      TokenVerifier
	cfg         *config.AuthConfig
	isPublic    func(*http.Request) bool
	noRotate    func(*http.Request) bool
	publicPaths map[string]struct{}
	logger      *logrus.Logger
}

// NewAuthMiddleware builds the middleware. isPublic reports routes that opt
// out of authentication; it may be nil.
func NewAuthMiddleware(tokens TokenVerifier, cfg *config.AuthConfig, isPublic func(*http.Request) bool, logger *logrus.Logger) *AuthMiddleware {
	paths := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		paths[strings.TrimRight(p, "/")] = struct{}{}
	}
	return &AuthMiddleware{
		tokens:      tokens,
		cfg:         cfg,
		isPublic:    isPublic,
		publicPaths: paths,
		logger:      logger,
	}
}

// WithoutRotation marks routes that accept a valid refresh token in place
// of an expired access token but never mint a replacement.
func (m *AuthMiddleware) WithoutRotation(skip func(*http.Request) bool) *AuthMiddleware {
	m.noRotate = skip
	return m
}

func (m *AuthMiddleware) public(r *http.Request) bool {
	if _, ok := m.publicPaths[strings.TrimRight(r.URL.Path, "/")]; ok {
		return true
	}
	return m.isPublic != nil && m.isPublic(r)
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.public(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := service.ExtractBearer(r.Header.Get(m.cfg.AccessHeader))
		if !ok {
			m.reject(w, r, service.ErrCredentialMissing)
			return
		}

		claims, err := m.tokens.Verify(r.Context(), models.TokenTypeAccess, token)
		if err == nil {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
			return
		}
		if !service.Refreshable(err) {
			m.reject(w, r, err)
			return
		}

		m.refresh(w, r, next, err)
	})
}

func (m *AuthMiddleware) refresh(w http.ResponseWriter, r *http.Request, next http.Handler, accessErr error) {
	token, ok := service.ExtractBearer(r.Header.Get(m.cfg.RefreshHeader))
	if !ok {
		m.reject(w, r, accessErr)
		return
	}

	if m.noRotate != nil && m.noRotate(r) {
		claims, err := m.tokens.Verify(r.Context(), models.TokenTypeRefresh, token)
		if err != nil {
			m.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		return
	}

	access, claims, err := m.tokens.Refresh(r.Context(), token)
	if err != nil {
		m.reject(w, r, err)
		return
	}

	m.logger.WithFields(logrus.Fields{
		"subject": claims.Subject,
		"jti":     claims.ID,
	}).Debug("Access token refreshed by middleware")

	w.Header().Set(m.cfg.NewAccessHeader, access)
	next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
}

// statusFor maps a token failure to its HTTP status.
func (m *AuthMiddleware) statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDependencyUnavailable):
		return m.cfg.DependencyFailureStatus
	case errors.Is(err, service.ErrScopeInsufficient), service.Forged(err):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := m.statusFor(err)
	reason := service.Reason(err)

	entry := m.logger.WithError(err).WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"reason": reason,
		"status": status,
	})
	if errors.Is(err, service.ErrDependencyUnavailable) {
		entry.Error("Token store unavailable, rejecting request")
	} else {
		entry.Debug("Request authentication failed")
	}

	challenge := "Bearer"
	if reason != service.ReasonCredentialMissing && reason != service.ReasonDependencyUnavailable {
		challenge = `Bearer error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, status, reason, err, m.cfg.Debug)
}
