package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "household-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		Name:    "Alice",
		Email:   "alice@example.com",
		Picture: "https://example.com/a.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "household-idp",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestParseToken(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		issuer  string
		wantErr bool
	}{
		{
			name: "Valid",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
			},
		},
		{
			name: "ValidWithIssuer",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
			},
			issuer: "household-idp",
		},
		{
			name: "WrongIssuer",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
			},
			issuer:  "someone-else",
			wantErr: true,
		},
		{
			name:    "WrongSecret",
			token:   func(t *testing.T) string { return signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()) },
			wantErr: true,
		},
		{
			name: "WrongAlgorithm",
			token: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())
			},
			wantErr: true,
		},
		{
			name:    "Expired",
			token:   func(t *testing.T) string { return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired) },
			wantErr: true,
		},
		{
			name:    "MissingSubject",
			token:   func(t *testing.T) string { return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(testSecret, tt.issuer, tt.token(t))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ledger.Member{
				UID:         "alice",
				DisplayName: "Alice",
				Email:       "alice@example.com",
				PhotoURL:    "https://example.com/a.png",
			}, claims.Member())
		})
	}
}

func TestParseToken_EmptySecretRejectsEverything(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	claims, err := ParseToken("", "", token)
	assert.ErrorIs(t, err, ErrNoSecret)
	assert.Nil(t, claims)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name       string
		devHeader  bool
		setHeaders func(t *testing.T, r *http.Request)
		wantStatus int
		wantUID    string
	}{
		{
			name: "BearerToken",
			setHeaders: func(t *testing.T, r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))
			},
			wantStatus: http.StatusOK,
			wantUID:    "alice",
		},
		{
			name:       "MissingHeader",
			setHeaders: func(t *testing.T, r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "MalformedHeader",
			setHeaders: func(t *testing.T, r *http.Request) {
				r.Header.Set("Authorization", "Token abc")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "DevHeaderDisabled",
			setHeaders: func(t *testing.T, r *http.Request) {
				r.Header.Set(DevUserHeader, "bob")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:      "DevHeaderEnabled",
			devHeader: true,
			setHeaders: func(t *testing.T, r *http.Request) {
				r.Header.Set(DevUserHeader, "bob")
			},
			wantStatus: http.StatusOK,
			wantUID:    "bob",
		},
		{
			name:      "BearerWinsOverDevHeader",
			devHeader: true,
			setHeaders: func(t *testing.T, r *http.Request) {
				r.Header.Set(DevUserHeader, "bob")
				r.Header.Set("Authorization", "Bearer garbage")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(Auth(logger, config.AuthConfig{JWTSecret: testSecret, AllowDevHeader: tt.devHeader}))
			var gotUID string
			router.GET("/me", func(c *gin.Context) {
				actor, ok := GetActor(c)
				require.True(t, ok)
				gotUID = actor.UID
				c.Status(http.StatusOK)
			})

			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			tt.setHeaders(t, req)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantUID, gotUID)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rr.Body.String(), `"UNAUTHORIZED"`)
			}
		})
	}
}
