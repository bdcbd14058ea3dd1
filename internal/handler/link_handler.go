package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirved/linkly/internal/middleware"
	"github.com/kirved/linkly/internal/model"
	"github.com/kirved/linkly/internal/qr"
	"github.com/kirved/linkly/internal/quota"
	"github.com/kirved/linkly/internal/service"
)

// LinkHandler handles HTTP requests for link operations
type LinkHandler struct {
	service  *service.LinkService
	resolver *service.Resolver
	baseURL  string
}

// NewLinkHandler creates a new link handler instance
func NewLinkHandler(svc *service.LinkService, resolver *service.Resolver, baseURL string) *LinkHandler {
	return &LinkHandler{
		service:  svc,
		resolver: resolver,
		baseURL:  baseURL,
	}
}

// CreateLinkRequest represents the request body for creating a short link
type CreateLinkRequest struct {
	OriginalURL string `json:"original_url" binding:"required"`
	CustomCode  string `json:"custom_code,omitempty"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"short_code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	VisitCount  uint64    `json:"visit_count"`
	IsActive    bool      `json:"is_active"`
	IsFlagged   bool      `json:"is_flagged"`
	FlagReason  string    `json:"flag_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Response represents a generic API response
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (h *LinkHandler) linkResponse(link *model.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    h.buildShortURL(link.ShortCode),
		OriginalURL: link.OriginalURL,
		VisitCount:  link.VisitCount,
		IsActive:    link.IsActive,
		IsFlagged:   link.IsFlagged,
		FlagReason:  link.FlagReason,
		CreatedAt:   link.CreatedAt,
	}
}

// CreateShortLink handles POST /api/v1/shorten
func (h *LinkHandler) CreateShortLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), service.CreateLinkParams{
		OriginalURL: req.OriginalURL,
		CustomCode:  req.CustomCode,
		OwnerID:     middleware.OwnerFrom(c),
		Identity:    quota.ClientIdentity(c.GetHeader("X-Forwarded-For"), c.Request.RemoteAddr),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Code: http.StatusCreated,
		Data: h.linkResponse(link),
	})
}

// Redirect handles GET /:short_code. Flagged links get a warning payload
// instead of an immediate redirect; the client resubmits with ?confirm=1 once
// the user explicitly accepts, and only that proceed counts as a visit.
func (h *LinkHandler) Redirect(c *gin.Context) {
	shortCode := c.Param("short_code")

	res, err := h.resolver.Resolve(c.Request.Context(), shortCode)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	switch res.State {
	case service.StateNotFound:
		writeError(c, http.StatusNotFound, "Short URL not found")
	case service.StateInactive:
		writeError(c, http.StatusGone, "Short URL has been deactivated")
	case service.StateFlagged:
		if c.Query("confirm") == "1" {
			link, err := h.service.RecordVisit(c.Request.Context(), shortCode)
			if err != nil {
				writeServiceError(c, err)
				return
			}
			h.service.LogVisit(link, c.ClientIP(), c.Request.UserAgent())
			c.Redirect(http.StatusFound, res.OriginalURL)
			return
		}
		c.JSON(http.StatusOK, Response{
			Code:    http.StatusOK,
			Message: "This destination was flagged as potentially malicious. Resubmit with ?confirm=1 to proceed.",
			Data: gin.H{
				"warning":      true,
				"original_url": res.OriginalURL,
				"flag_reason":  res.FlagReason,
			},
		})
	case service.StateRedirect:
		h.service.LogVisit(res.Link, c.ClientIP(), c.Request.UserAgent())
		c.Redirect(http.StatusFound, res.OriginalURL)
	}
}

// GetLinkInfo handles GET /api/v1/info/:short_code
func (h *LinkHandler) GetLinkInfo(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("short_code"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: h.linkResponse(link),
	})
}

// GetQRCode handles GET /api/v1/qr/:short_code
func (h *LinkHandler) GetQRCode(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("short_code"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))
	png, err := qr.PNG(h.buildShortURL(link.ShortCode), size)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// ToggleActiveRequest represents the request body for toggling a link
type ToggleActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ToggleActive handles PATCH /api/v1/links/:short_code/active
func (h *LinkHandler) ToggleActive(c *gin.Context) {
	var req ToggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	link, ok := h.ownedLink(c)
	if !ok {
		return
	}

	updated, err := h.service.SetActive(c.Request.Context(), link.ShortCode, *req.Active)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: h.linkResponse(updated),
	})
}

// DeleteLink handles DELETE /api/v1/links/:short_code
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	link, ok := h.ownedLink(c)
	if !ok {
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), link.ShortCode); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "Link deleted",
	})
}

// BulkActiveRequest represents the request body for bulk toggling
type BulkActiveRequest struct {
	IDs    []int64 `json:"ids" binding:"required"`
	Active *bool   `json:"active" binding:"required"`
}

// BulkToggleActive handles POST /api/v1/links/bulk/active
func (h *LinkHandler) BulkToggleActive(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	var req BulkActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	affected, err := h.service.BulkSetActive(c.Request.Context(), req.IDs, owner, *req.Active)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: gin.H{"affected": affected},
	})
}

// BulkDeleteRequest represents the request body for bulk deletion
type BulkDeleteRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// BulkDelete handles POST /api/v1/links/bulk/delete
func (h *LinkHandler) BulkDelete(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	affected, err := h.service.BulkDelete(c.Request.Context(), req.IDs, owner)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Data: gin.H{"affected": affected},
	})
}

// HealthCheck handles GET /health
func (h *LinkHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "OK",
	})
}

// ownedLink loads the link from the path parameter and enforces that the
// authenticated user owns it. Single-link mutations check ownership here in
// the HTTP layer; the registry performs none.
func (h *LinkHandler) ownedLink(c *gin.Context) (*model.Link, bool) {
	owner, ok := requireOwner(c)
	if !ok {
		return nil, false
	}

	link, err := h.service.GetLink(c.Request.Context(), c.Param("short_code"))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if !link.OwnedBy(owner) {
		writeError(c, http.StatusForbidden, "You do not own this link")
		return nil, false
	}
	return link, true
}

func requireOwner(c *gin.Context) (uuid.UUID, bool) {
	owner := middleware.OwnerFrom(c)
	if owner == nil {
		writeError(c, http.StatusUnauthorized, "Authentication required")
		return uuid.UUID{}, false
	}
	return *owner, true
}

func (h *LinkHandler) buildShortURL(shortCode string) string {
	return fmt.Sprintf("%s/%s", h.baseURL, shortCode)
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Message: message,
	})
}

// writeServiceError maps registry errors onto HTTP statuses. Anything not in
// the user-error taxonomy is a transient storage failure.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidCode):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCodeTaken):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(c, http.StatusTooManyRequests,
			"Anonymous users can only shorten 10 URLs per day. Please register for unlimited access.")
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "Internal error")
	}
}
