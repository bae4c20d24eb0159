package app

import (
	"errors"
	"net/http"
	"strings"

	"Gin_postgres_redis_lending_engine/session"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// SessionID reads the session from the cookie, falling back to a bearer token.
func SessionID(c *gin.Context, cookieName string) string {
	if ck, err := c.Request.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func AuthRequired(appSess *session.AppSessionStore, cookieName string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := SessionID(c, cookieName)
		if sid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), sid)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				log.Error("session lookup failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}
		SetPrincipal(c, as.Principal())
		c.Next()
	}
}

// StaffOnly must run after AuthRequired.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !p.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (tenant.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return tenant.Principal{}, false
	}
	p, ok := v.(tenant.Principal)
	return p, ok
}

// SetPrincipal is used by AuthRequired and by handler tests.
func SetPrincipal(c *gin.Context, p tenant.Principal) { c.Set(principalKey, p) }
