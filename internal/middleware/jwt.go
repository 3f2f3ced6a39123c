package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
)

const (
	// ContextKeyPrincipal is the Gin context key for the authenticated caller.
	ContextKeyPrincipal = "principal"
)

var errNoToken = errors.New("authorization header or token query required")

// TokenValidator resolves a bearer token into the caller.
type TokenValidator interface {
	Principal(token string) (model.Principal, error)
}

// RequireAuth validates the bearer token and stores the principal.
// EventSource and WebSocket clients cannot set headers, so ?token= is
// accepted as a fallback.
func RequireAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		p, err := auth.Principal(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// GetPrincipal retrieves the caller from the Gin context.
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return model.Principal{}, false
	}
	p, ok := val.(model.Principal)
	return p, ok
}

func extractToken(c *gin.Context) (string, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = strings.TrimSpace(parts[1])
		}
	}

	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return "", errNoToken
	}
	return tokenStr, nil
}
