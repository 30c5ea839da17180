package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// APIKeyHeader is the HTTP header name for API key authentication.
	APIKeyHeader = "X-API-Key"
	// APIKeyQuery is the query parameter name for API key authentication.
	APIKeyQuery = "api_key"
	// TokenIssuer is the issuer of admin tokens.
	TokenIssuer = "rental-manager"
	// SubjectKey is the gin context key holding the authenticated subject.
	SubjectKey = "auth_subject"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AuthConfig selects how the admin API authenticates callers.
type AuthConfig struct {
	// Enabled turns authentication on. When false every request passes.
	Enabled bool
	// APIKeys lists accepted X-API-Key values.
	APIKeys map[string]bool
	// JWTSecret verifies HS256 bearer tokens. Empty disables bearer tokens.
	JWTSecret []byte
}

// Authenticate returns a middleware accepting a valid API key or a valid
// bearer token. Requests carrying neither are rejected with 401.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			key = c.Query(APIKeyQuery)
		}
		if key != "" {
			if cfg.APIKeys[key] {
				c.Set(SubjectKey, "api-key")
				c.Next()
				return
			}
			Abort(c, http.StatusUnauthorized, "Invalid API key")
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			Abort(c, http.StatusUnauthorized, "API key or bearer token is required")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" || len(cfg.JWTSecret) == 0 {
			Abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, err := ParseToken(cfg.JWTSecret, token)
		if err != nil {
			log := RequestLog(c)
			log.Debug().Err(err).Msg("Rejected bearer token")
			Abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}
		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

// IssueToken signs an admin token for subject valid for ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an admin token and returns its claims.
func ParseToken(secret []byte, token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subject returns the authenticated subject, or "" when auth is disabled.
func Subject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}
