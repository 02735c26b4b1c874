package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	Sessions middleware.SessionConfig
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// internalError sends a 500 internal server error response
func (h *BaseHandler) internalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindError answers a request whose body or query failed to bind
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if details := middleware.ValidationDetails(err); len(details) > 0 {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed", middleware.GetRequestID(c), details))
		return
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body")
}

// HandleError maps domain, form, session and backend errors onto the JSON
// envelope
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var fieldErr *dto.FieldError
	if errors.As(err, &fieldErr) {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", requestID,
			[]dto.ValidationDetail{{Field: fieldErr.Field, Message: fieldErr.Message}}))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		if domainErr.Field != "" && code == dto.ErrCodeValidation {
			c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(domainErr.Error(), requestID,
				[]dto.ValidationDetail{{Field: domainErr.Field, Message: domainErr.Message}}))
			return
		}
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Error(), requestID))
		return
	}

	if errors.Is(err, session.ErrNotFound) || errors.Is(err, apiclient.ErrUnauthorized) {
		h.Unauthorized(c, apiclient.Message(apiclient.ErrUnauthorized))
		return
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		code := upstreamCode(apiErr.Status)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, apiclient.Message(err), requestID))
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeUpstreamTimeout, apiclient.Message(err))
		return
	}

	middleware.GetLogger(c).Error("unhandled error", zap.Error(err))
	h.internalError(c, "An unexpected error occurred")
}

// upstreamCode translates a backend status into the dashboard's error code
func upstreamCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dto.ErrCodeValidation
	case http.StatusNotFound:
		return dto.ErrCodeNotFound
	case http.StatusConflict:
		return dto.ErrCodeConflict
	case http.StatusForbidden:
		return dto.ErrCodeForbidden
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return dto.ErrCodeUnsupported
	case http.StatusTooManyRequests:
		return dto.ErrCodeRateLimited
	case http.StatusGatewayTimeout:
		return dto.ErrCodeUpstreamTimeout
	default:
		return dto.ErrCodeUpstream
	}
}

// store returns the request's dashboard store
func store(c *gin.Context) *dashboard.Store {
	return middleware.CurrentStore(c)
}

// Render writes a page with the session's pending toasts
func (h *BaseHandler) Render(c *gin.Context, status int, page, title, nav string, data any) {
	p := views.Page{
		Title:     title,
		Nav:       nav,
		RequestID: middleware.GetRequestID(c),
		Data:      data,
	}
	if s := middleware.CurrentSession(c); s != nil {
		p.User = s.DisplayName()
	}
	if st := store(c); st != nil {
		p.Flashes = st.DrainFlashes()
	}
	c.HTML(status, page, p)
}

// RenderError shows the error page
func (h *BaseHandler) RenderError(c *gin.Context, status int, message string) {
	h.Render(c, status, "error.html", http.StatusText(status), "", views.ErrorData{Status: status, Message: message})
}

// Redirect sends the browser to target after a form post
func (h *BaseHandler) Redirect(c *gin.Context, target string) {
	c.Redirect(http.StatusSeeOther, target)
}

// Toast queues a message on the session's dashboard
func (h *BaseHandler) Toast(c *gin.Context, level, message string) {
	if st := store(c); st != nil {
		st.Toast(level, message)
	}
}

// FormError toasts a binding or validation failure
func (h *BaseHandler) FormError(c *gin.Context, err error) {
	h.Toast(c, dashboard.FlashError, FormMessage(err))
}

// FormMessage describes a form error for a toast
func FormMessage(err error) string {
	if details := middleware.ValidationDetails(err); len(details) > 0 {
		parts := make([]string, len(details))
		for i, d := range details {
			parts[i] = d.Field + ": " + d.Message
		}
		return strings.Join(parts, "; ")
	}
	var fieldErr *dto.FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Error()
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Error()
	}
	return apiclient.Message(err)
}

// Expired reports whether err means the backend rejected the session's
// token. The session is ended and the browser sent to sign in again.
func (h *BaseHandler) Expired(c *gin.Context, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	if s := middleware.CurrentSession(c); s != nil && h.Sessions.Manager != nil {
		if derr := h.Sessions.Manager.Destroy(c.Request.Context(), s.ID); derr != nil {
			middleware.GetLogger(c).Warn("destroy expired session", zap.Error(derr))
		}
		c.Set(middleware.SessionKey, nil)
	}
	middleware.ClearSessionCookie(c, h.Sessions)
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		h.Unauthorized(c, apiclient.Message(err))
	} else {
		h.Redirect(c, "/login")
	}
	return true
}

// paramID parses a positive integer path parameter
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseIDs parses a comma separated id list, skipping anything invalid
func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
