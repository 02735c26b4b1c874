package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	// SessionKey holds the *session.Session in the gin context
	SessionKey = "session"
	// DashboardKey holds the *dashboard.Store in the gin context
	DashboardKey = "dashboard"
)

// SessionConfig configures the session cookie
type SessionConfig struct {
	Manager    *session.Manager
	CookieName string
	Secure     bool
	SameSite   http.SameSite
}

func (cfg SessionConfig) cookieName() string {
	if cfg.CookieName == "" {
		return "dashboard_session"
	}
	return cfg.CookieName
}

// Sessions loads the session named by the cookie. Requests without a live
// session continue anonymously; RequireLogin decides what to do with them.
func Sessions(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cfg.cookieName())
		if err != nil || id == "" {
			c.Next()
			return
		}

		sess, err := cfg.Manager.Load(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				GetLogger(c).Warn("session lookup failed", zap.Error(err))
			}
			ClearSessionCookie(c, cfg)
			c.Next()
			return
		}

		ctx := apiclient.WithCredentials(c.Request.Context(), sess.Credentials())
		log := GetLogger(c)
		ctx, log = logger.WithCustomerID(ctx, log, sess.CustomerID)
		ctx, log = logger.WithSessionID(ctx, log, sess.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("logger", log)
		c.Set(SessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the signed-in session, or nil
func CurrentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// SetSessionCookie issues the cookie for s
func SetSessionCookie(c *gin.Context, cfg SessionConfig, s *session.Session) {
	maxAge := int(s.ExpiresAt.Sub(s.CreatedAt).Seconds())
	c.SetSameSite(sameSite(cfg.SameSite))
	c.SetCookie(cfg.cookieName(), s.ID, maxAge, "/", "", cfg.Secure, true)
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(c *gin.Context, cfg SessionConfig) {
	c.SetSameSite(sameSite(cfg.SameSite))
	c.SetCookie(cfg.cookieName(), "", -1, "/", "", cfg.Secure, true)
}

func sameSite(s http.SameSite) http.SameSite {
	if s == 0 {
		return http.SameSiteLaxMode
	}
	return s
}

// RequireLogin rejects anonymous requests: JSON routes get a 401 envelope,
// pages are redirected to the login form
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) != nil {
			c.Next()
			return
		}
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized, "Sign in to continue", GetRequestID(c)))
			return
		}
		target := "/login"
		if c.Request.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
		}
		c.Redirect(http.StatusSeeOther, target)
		c.Abort()
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}

// Dashboard restores the session's dashboard store for the request and
// saves its snapshot afterwards. newStore builds an empty store.
func Dashboard(manager *session.Manager, newStore func() *dashboard.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil {
			c.Next()
			return
		}

		store := newStore()
		if len(sess.Dashboard) > 0 {
			if err := store.Restore(sess.Dashboard); err != nil {
				GetLogger(c).Warn("discarding dashboard state", zap.Error(err))
			}
		}
		c.Set(DashboardKey, store)

		c.Next()

		// the handler may have ended the session
		if CurrentSession(c) == nil {
			return
		}
		data, err := store.Snapshot()
		if err != nil {
			GetLogger(c).Error("snapshot dashboard", zap.Error(err))
			return
		}
		sess.Dashboard = data
		if err := manager.Save(c.Request.Context(), sess); err != nil {
			GetLogger(c).Error("save session", zap.Error(err))
		}
	}
}

// CurrentStore returns the request's dashboard store, or nil
func CurrentStore(c *gin.Context) *dashboard.Store {
	if v, ok := c.Get(DashboardKey); ok {
		if s, ok := v.(*dashboard.Store); ok {
			return s
		}
	}
	return nil
}

// GetLogger returns the request logger
func GetLogger(c *gin.Context) *zap.Logger {
	return logger.GetGinLogger(c)
}
