package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerIDKey is the gin context key holding the authenticated owner id.
const OwnerIDKey = "owner_id"

var ErrUnauthenticated = errors.New("invalid credentials")

// Authenticator resolves a bearer credential to an owner id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// Claims accepts either the standard "sub" or a "user_id" claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrUnauthenticated
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// APIKeyAuthenticator maps static API keys to owner ids.
type APIKeyAuthenticator struct {
	keys map[string]string
}

func NewAPIKeyAuthenticator(keys map[string]string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(key string) (string, error) {
	// Constant-time comparison against every key.
	owner := ""
	for validKey, id := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			owner = id
		}
	}
	if owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}

// ChainAuthenticator returns the first successful result.
type ChainAuthenticator []Authenticator

func (c ChainAuthenticator) Authenticate(token string) (string, error) {
	for _, a := range c {
		if owner, err := a.Authenticate(token); err == nil {
			return owner, nil
		}
	}
	return "", ErrUnauthenticated
}

// credential reads X-API-Key, falling back to an Authorization Bearer token.
func credential(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// RequireAuth rejects requests without a valid credential and stores the
// owner id under OwnerIDKey.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required: pass X-API-Key or Authorization: Bearer <token>",
			})
			return
		}

		owner, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid credentials",
			})
			return
		}

		c.Set(OwnerIDKey, owner)
		c.Next()
	}
}

func OwnerFromContext(c *gin.Context) (string, bool) {
	owner, ok := c.Get(OwnerIDKey)
	if !ok {
		return "", false
	}
	id, ok := owner.(string)
	return id, ok && id != ""
}
