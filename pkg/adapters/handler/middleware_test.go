package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{
		JWTSecret: "testservlet",
	}
	mw := NewMiddleware(cfg)

	tests := []struct {
		name           string
		path           string
		cookieName     string
		cookieValue    string
		bearer         string
		expectedStatus int
	}{
		{
			name:           "No Cookie - API",
			path:           "/api/v1/links",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "No Cookie - Browser",
			path:           "/dashboard",
			expectedStatus: http.StatusTemporaryRedirect,
		},
		{
			name:           "Invalid Cookie - API",
			path:           "/api/v1/links",
			cookieName:     "auth_token",
			cookieValue:    "invalid",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Cookie - API",
			path:           "/api/v1/links",
			cookieName:     "auth_token",
			cookieValue:    generateTestToken(t, cfg.JWTSecret, -time.Minute),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Secret - API",
			path:           "/api/v1/links",
			bearer:         generateTestToken(t, "other", 5*time.Minute),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Cookie - API",
			path:           "/api/v1/links",
			cookieName:     "auth_token",
			cookieValue:    generateTestToken(t, cfg.JWTSecret, 5*time.Minute),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Valid Bearer - API",
			path:           "/api/v1/links",
			bearer:         generateTestToken(t, cfg.JWTSecret, 5*time.Minute),
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookieName != "" {
				req.AddCookie(&http.Cookie{Name: tt.cookieName, Value: tt.cookieValue})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}

			var email string
			rr := httptest.NewRecorder()
			handler := mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				email = UserEmail(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "test@example.com", email)
			}
		})
	}
}

func TestAuthHandler_IssueTokenAccepted(t *testing.T) {
	cfg := &config.Config{JWTSecret: "s3cret", AllowedEmails: []string{"admin@example.com"}}
	auth := NewAuthHandler(cfg, discardLogger())
	mw := NewMiddleware(cfg)

	token, expiresAt, err := auth.issueToken("admin@example.com", time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(sessionTTL), expiresAt, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/links", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: token})
	rr := httptest.NewRecorder()
	mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, auth.isAllowed("admin@example.com"))
	assert.False(t, auth.isAllowed("mallory@example.com"))
}

func TestAuthHandler_LoginSetsState(t *testing.T) {
	cfg := &config.Config{GoogleClientID: "client", GoogleRedirectURL: "http://localhost/cb"}
	auth := NewAuthHandler(cfg, discardLogger())

	rr := httptest.NewRecorder()
	auth.Login(rr, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookieName, cookies[0].Name)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
}

func TestAuthHandler_CallbackRejectsBadState(t *testing.T) {
	auth := NewAuthHandler(&config.Config{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "expected"})
	rr := httptest.NewRecorder()
	auth.Callback(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func generateTestToken(t *testing.T, secret string, ttl time.Duration) string {
	expirationTime := time.Now().Add(ttl)
	claims := &jwt.RegisteredClaims{
		Subject:   "test@example.com",
		ExpiresAt: jwt.NewNumericDate(expirationTime),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
