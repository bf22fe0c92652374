package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
)

// ScopeModelReload authorizes POST /model/reload.
const ScopeModelReload = "model:reload"

var errNoSecret = errors.New("token secret is empty")

// IssueToken signs an HS256 token carrying scope that expires after ttl.
func IssueToken(secret []byte, scope string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken checks the signature, expiry and scope of tokenString.
func ValidateToken(secret []byte, tokenString, scope string) error {
	if len(secret) == 0 {
		return errNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("invalid token")
	}
	if got, _ := claims["scope"].(string); got != scope {
		return fmt.Errorf("token scope %q does not grant %q", got, scope)
	}
	return nil
}

// RequireBearer rejects requests without a valid "Authorization: Bearer"
// token for scope. An empty secret rejects every request.
func RequireBearer(secret []byte, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		if err := ValidateToken(secret, strings.TrimSpace(tokenString), scope); err != nil {
			abortUnauthorized(c, "invalid bearer token")
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="viral-o-meter"`)
	appErr := apperrors.NewAuthenticationError(msg)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
}
