package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidate(t *testing.T) {
	m := NewTokenManager(testKey, "pdpm-core")
	token, err := m.Issue("svc-billing", []string{ScopeRead}, time.Hour)
	require.NoError(t, err)

	p, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "svc-billing", p.Subject)
	assert.NotEmpty(t, p.TokenID)
	assert.True(t, p.HasScope(ScopeRead))
	assert.False(t, p.HasScope(ScopeWrite))
}

func TestValidateRejects(t *testing.T) {
	m := NewTokenManager(testKey, "pdpm-core")

	expired, err := m.Issue("svc", nil, -time.Minute)
	require.NoError(t, err)
	other, err := NewTokenManager("another-signing-key-0000", "pdpm-core").Issue("svc", nil, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := NewTokenManager(testKey, "someone-else").Issue("svc", nil, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "svc", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSubject, err := m.Issue("", nil, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    other,
		"wrong issuer": wrongIssuer,
		"alg none":     none,
		"no subject":   noSubject,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tok, err := ExtractBearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = ExtractBearerToken("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer  "} {
		_, err := ExtractBearerToken(h)
		assert.ErrorIs(t, err, ErrMissingToken, h)
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokenManager(testKey, "")
	mw := NewMiddleware(tokens, false, zaptest.NewLogger(t))

	var seen *Principal
	h := mw.Require(ScopeWrite, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodDelete, "/v1/assessments/a/cache", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope"))

	reader, err := tokens.Issue("reader", []string{ScopeRead}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+reader))

	writer, err := tokens.Issue("writer", []string{ScopeRead, ScopeWrite}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do("Bearer "+writer))
	require.NotNil(t, seen)
	assert.Equal(t, "writer", seen.Subject)
}

func TestMiddlewareSkipAuth(t *testing.T) {
	mw := NewMiddleware(nil, true, zaptest.NewLogger(t))
	h := mw.Require(ScopeWrite, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		assert.Equal(t, "dev", p.Subject)
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
