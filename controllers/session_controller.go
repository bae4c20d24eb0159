package controllers

import (
	"net/http"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionController struct {
	sess         *session.AppSessionStore
	cookieName   string
	secureCookie bool
	log          *zap.Logger
}

func NewSessionController(sess *session.AppSessionStore, cookieName string, secureCookie bool, log *zap.Logger) *SessionController {
	return &SessionController{sess: sess, cookieName: cookieName, secureCookie: secureCookie, log: log}
}

// Logout drops the redis session and clears the cookie.
func (sc *SessionController) Logout(c *gin.Context) {
	if sid := app.SessionID(c, sc.cookieName); sid != "" {
		if err := sc.sess.Delete(c.Request.Context(), sid); err != nil {
			sc.log.Warn("delete session failed", zap.Error(err))
		}
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sc.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sc.secureCookie,
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}
