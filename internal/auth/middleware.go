package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated caller, if any
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// ExtractBearerToken returns the token from an Authorization header value
func ExtractBearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware authenticates HTTP requests with bearer tokens
type Middleware struct {
	tokens   *TokenManager
	logger   *zap.Logger
	skipAuth bool
}

// NewMiddleware creates the middleware. With skipAuth every request runs as a local
// development principal holding all scopes.
func NewMiddleware(tokens *TokenManager, skipAuth bool, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger, skipAuth: skipAuth}
}

// Require wraps next so that it only runs for callers holding scope
func (m *Middleware) Require(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipAuth {
			dev := &Principal{Subject: "dev", Scopes: []string{ScopeRead, ScopeWrite}}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), dev)))
			return
		}

		token, err := ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		p, err := m.tokens.Validate(token)
		if err != nil {
			m.logger.Debug("Rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		if !p.HasScope(scope) {
			writeError(w, http.StatusForbidden, "missing scope "+scope)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="pdpm"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
