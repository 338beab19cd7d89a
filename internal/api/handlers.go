package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/orchestrator"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TitleService is the catalog surface the handlers need.
type TitleService interface {
	GetTitle(ctx context.Context, id string) (*orchestrator.TitleView, error)
	ListTitles(ctx context.Context, kind domain.TitleKind, limit, offset int) ([]domain.Title, error)
	TriggerRefresh(ctx context.Context, id string, force bool) (orchestrator.RefreshStatus, error)
	ValidateLinks(ctx context.Context, id string) (*orchestrator.ValidationResult, error)
}

// TitlesHandler handles the /api/v1/titles routes.
type TitlesHandler struct {
	service TitleService
}

// NewTitlesHandler creates a TitlesHandler.
func NewTitlesHandler(service TitleService) *TitlesHandler {
	return &TitlesHandler{service: service}
}

// List handles GET /api/v1/titles
func (h *TitlesHandler) List(c *gin.Context) {
	var kind domain.TitleKind
	if raw := c.Query("type"); raw != "" {
		parsed, ok := domain.ParseKind(raw)
		if !ok {
			respondBadRequest(c, "type must be movie or show")
			return
		}
		kind = parsed
	}

	limit, offset := parseLimitOffset(c)

	titles, err := h.service.ListTitles(c.Request.Context(), kind, limit, offset)
	if err != nil {
		h.fail(c, err, "Failed to list titles")
		return
	}
	if titles == nil {
		titles = []domain.Title{}
	}

	c.JSON(http.StatusOK, gin.H{
		"titles": titles,
		"count":  len(titles),
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /api/v1/titles/:id
func (h *TitlesHandler) Get(c *gin.Context) {
	view, err := h.service.GetTitle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to load title")
		return
	}
	if view.Links == nil {
		view.Links = []domain.Link{}
	}

	c.JSON(http.StatusOK, view)
}

// Refresh handles POST /api/v1/titles/:id/refresh
func (h *TitlesHandler) Refresh(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	status, err := h.service.TriggerRefresh(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		h.fail(c, err, "Failed to schedule refresh")
		return
	}

	code := http.StatusOK
	if status == orchestrator.StatusStarted {
		code = http.StatusAccepted
	}

	c.JSON(code, gin.H{
		"message": refreshMessage(status),
		"status":  status,
	})
}

// Validate handles POST /api/v1/titles/:id/validate
func (h *TitlesHandler) Validate(c *gin.Context) {
	result, err := h.service.ValidateLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to validate links")
		return
	}

	c.JSON(http.StatusOK, result)
}

// fail maps service errors onto status codes.
func (h *TitlesHandler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, orchestrator.ErrTitleNotFound):
		respondNotFound(c, "title")
	case errors.Is(err, orchestrator.ErrCannotRefresh):
		respondError(c, http.StatusUnprocessableEntity, "title has no detail url to refresh from")
	case errors.Is(err, orchestrator.ErrShuttingDown):
		respondError(c, http.StatusServiceUnavailable, "service is shutting down")
	default:
		logger.FromContext(c.Request.Context()).Error(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		_ = c.Error(err)
		respondInternalError(c, message)
	}
}

func refreshMessage(status orchestrator.RefreshStatus) string {
	switch status {
	case orchestrator.StatusStarted:
		return "Refresh started"
	case orchestrator.StatusAlreadyRunning:
		return "Refresh already in progress"
	case orchestrator.StatusFresh:
		return "Links are fresh; nothing to do"
	default:
		return string(status)
	}
}

// parseLimitOffset parses limit and offset query params with defaults.
func parseLimitOffset(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondNotFound(c *gin.Context, resource string) {
	respondError(c, http.StatusNotFound, resource+" not found")
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}
