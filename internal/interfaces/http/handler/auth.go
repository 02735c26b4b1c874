package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

// AuthHandler signs browsers in and out
type AuthHandler struct {
	BaseHandler
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg middleware.SessionConfig) *AuthHandler {
	return &AuthHandler{BaseHandler: BaseHandler{Sessions: cfg}}
}

// LoginPage shows the sign-in form
func (h *AuthHandler) LoginPage(c *gin.Context) {
	next := views.NextURL(c.Query("next"))
	if middleware.CurrentSession(c) != nil {
		h.Redirect(c, next)
		return
	}
	h.Render(c, http.StatusOK, "login.html", "Sign in", "", views.LoginData{Next: next})
}

// Login starts a session for the posted access token
func (h *AuthHandler) Login(c *gin.Context) {
	next := views.NextURL(c.PostForm("next"))

	var form dto.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		h.Render(c, http.StatusBadRequest, "login.html", "Sign in", "", views.LoginData{
			Next:       next,
			CustomerID: form.CustomerID,
			Error:      FormMessage(err),
		})
		return
	}

	sess, err := h.Sessions.Manager.Login(c.Request.Context(), session.LoginInput{
		Token:      form.Token,
		CustomerID: form.CustomerID,
	})
	if err != nil {
		middleware.GetLogger(c).Info("login rejected", zap.Error(err))
		h.Render(c, http.StatusUnauthorized, "login.html", "Sign in", "", views.LoginData{
			Next:       next,
			CustomerID: form.CustomerID,
			Error:      FormMessage(err),
		})
		return
	}

	middleware.SetSessionCookie(c, h.Sessions, sess)
	h.Redirect(c, next)
}

// Logout ends the session
func (h *AuthHandler) Logout(c *gin.Context) {
	if s := middleware.CurrentSession(c); s != nil {
		if err := h.Sessions.Manager.Destroy(c.Request.Context(), s.ID); err != nil {
			middleware.GetLogger(c).Warn("destroy session", zap.Error(err))
		}
	}
	middleware.ClearSessionCookie(c, h.Sessions)
	h.Redirect(c, "/login")
}
