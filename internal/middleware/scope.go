package middleware

import (
	"net/http"
	"strings"

	"github.com/qcom/authgate/internal/service"
	"github.com/sirupsen/logrus"
)

// ScopeGuard enforces scope requirements on authenticated routes.
type ScopeGuard struct {
	adminScope string
	debug      bool
	logger     *logrus.Logger
}

// NewScopeGuard returns a guard. A caller holding adminScope passes every
// check; an empty adminScope disables the bypass.
func NewScopeGuard(adminScope string, debug bool, logger *logrus.Logger) *ScopeGuard {
	return &ScopeGuard{adminScope: adminScope, debug: debug, logger: logger}
}

// RequireScopes admits the request only when the identity holds every
// required scope.
func (g *ScopeGuard) RequireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, service.ReasonCredentialMissing, service.ErrCredentialMissing, g.debug)
				return
			}

			if g.adminScope != "" && identity.HasScope(g.adminScope) {
				next.ServeHTTP(w, r)
				return
			}

			for _, scope := range required {
				if !identity.HasScope(scope) {
					g.logger.WithFields(logrus.Fields{
						"subject": identity.Subject(),
						"missing": scope,
						"path":    r.URL.Path,
					}).Debug("Scope check failed")

					w.Header().Set("WWW-Authenticate",
						`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
					writeError(w, http.StatusForbidden, service.ReasonScopeInsufficient, service.ErrScopeInsufficient, g.debug)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
