package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
	"parkgate/internal/repository"
)

// Directory is the read/override surface the API needs from the store.
type Directory interface {
	FindEvents(ctx context.Context, plate *string, from, to *time.Time, limit, offset int) ([]repository.RecognitionEvent, error)
	FindDecisions(ctx context.Context, plate *string, limit, offset int) ([]repository.AccessDecision, error)
	FindSessions(ctx context.Context, plate *string, activeOnly bool, limit, offset int) ([]gate.ParkingSession, error)
	WaiveSession(ctx context.Context, id int64) error
}

// BarrierControl is the slice of a barrier controller the API exposes.
type BarrierControl interface {
	ID() string
	State() gate.BarrierState
	Grant()
	Reset()
}

// ReloadFunc refreshes the vehicle registry snapshot and reports how many
// vehicles the new snapshot holds.
type ReloadFunc func(ctx context.Context) (int, error)

type Handler struct {
	store    Directory
	barriers map[string]BarrierControl
	reload   ReloadFunc
	log      zerolog.Logger
}

func NewHandler(store Directory, barriers map[string]BarrierControl, reload ReloadFunc, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		barriers: barriers,
		reload:   reload,
		log:      log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	public := r.Group("/api/v1")
	{
		public.GET("/events", h.listEvents)
		public.GET("/decisions", h.listDecisions)
		public.GET("/sessions", h.listSessions)
		public.GET("/barriers", h.listBarriers)
	}

	admin := r.Group("/api/v1/admin")
	admin.Use(authMiddleware)
	{
		admin.POST("/barriers/:id/open", h.openBarrier)
		admin.POST("/barriers/:id/reset", h.resetBarrier)
		admin.POST("/registry/reload", h.reloadRegistry)
		admin.POST("/sessions/:id/waive", h.waiveSession)
	}
}

func (h *Handler) listEvents(c *gin.Context) {
	plate := plateQuery(c)

	from, ok := timeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return
	}

	limit, offset := pagination(c)

	events, err := h.store.FindEvents(c.Request.Context(), plate, from, to, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list events")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listDecisions(c *gin.Context) {
	plate := plateQuery(c)
	limit, offset := pagination(c)

	decisions, err := h.store.FindDecisions(c.Request.Context(), plate, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list decisions")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(decisions))
}

func (h *Handler) listSessions(c *gin.Context) {
	plate := plateQuery(c)
	activeOnly := c.Query("active") == "true"
	limit, offset := pagination(c)

	sessions, err := h.store.FindSessions(c.Request.Context(), plate, activeOnly, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, successResponse(sessions))
}

func (h *Handler) listBarriers(c *gin.Context) {
	type barrierStatus struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	statuses := make([]barrierStatus, 0, len(h.barriers))
	for _, b := range h.barriers {
		statuses = append(statuses, barrierStatus{ID: b.ID(), State: string(b.State())})
	}
	c.JSON(http.StatusOK, successResponse(statuses))
}

// openBarrier requests a manual open cycle, same as a granted pass.
func (h *Handler) openBarrier(c *gin.Context) {
	b, ok := h.barriers[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("unknown barrier"))
		return
	}
	if b.State() == gate.BarrierFault {
		c.JSON(http.StatusConflict, errorResponse("barrier is faulted, reset first"))
		return
	}
	b.Grant()
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

// resetBarrier clears a latched fault after an operator inspected the gate.
func (h *Handler) resetBarrier(c *gin.Context) {
	b, ok := h.barriers[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("unknown barrier"))
		return
	}
	b.Reset()
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handler) reloadRegistry(c *gin.Context) {
	count, err := h.reload(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("registry reload failed")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"vehicles": count,
	})
}

func (h *Handler) waiveSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid session id"))
		return
	}

	if err := h.store.WaiveSession(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("no unpaid session with that id"))
			return
		}
		h.log.Error().Err(err).Int64("session_id", id).Msg("failed to waive session")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func plateQuery(c *gin.Context) *string {
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		return &plate
	}
	return nil
}

func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(name+" must be RFC3339"))
		return nil, false
	}
	return &parsed, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
