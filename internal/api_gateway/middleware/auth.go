package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/ledger"
)

const (
	// DevUserHeader carries a bare uid when the dev fallback is enabled.
	DevUserHeader = "X-User-ID"

	// ActorKey is the key used to store the acting member in the context
	ActorKey = "actor"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrMissingSub   = errors.New("token has no subject")
	ErrNoSecret     = errors.New("no token secret configured")
)

// Claims is the identity carried by a bearer token. The subject is the uid.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Member converts the claims into the acting ledger member.
func (c *Claims) Member() ledger.Member {
	return ledger.Member{
		UID:         c.Subject,
		DisplayName: c.Name,
		Email:       c.Email,
		PhotoURL:    c.Picture,
	}
}

// ParseToken verifies an HS256 token and returns its claims. An empty issuer
// disables the issuer check.
func ParseToken(secret, issuer, tokenStr string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSub
	}
	return claims, nil
}

// Auth identifies the caller from the Authorization header and stores the
// acting member in the context. X-User-ID is honoured only when the dev
// fallback is on and no bearer token was sent.
func Auth(logger *slog.Logger, cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if uid := strings.TrimSpace(c.GetHeader(DevUserHeader)); cfg.AllowDevHeader && uid != "" {
				c.Set(ActorKey, ledger.Member{UID: uid})
				c.Next()
				return
			}
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", ErrMissingToken.Error())
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header")
			return
		}

		claims, err := ParseToken(cfg.JWTSecret, cfg.ExpectedIssuer, strings.TrimSpace(parts[1]))
		if err != nil {
			logger.Warn("Rejected bearer token",
				"error", err,
				"correlation_id", GetCorrelationID(c),
			)
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		c.Set(ActorKey, claims.Member())
		c.Next()
	}
}

// GetActor returns the member stored by Auth.
func GetActor(c *gin.Context) (ledger.Member, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return ledger.Member{}, false
	}
	actor, ok := v.(ledger.Member)
	return actor, ok && actor.UID != ""
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
