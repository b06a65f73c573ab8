package notification

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notify-api/internal/handler"
	"github.com/jwalitptl/notify-api/internal/middleware"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/service/notification"
	"github.com/jwalitptl/notify-api/pkg/messaging"
)

const defaultPageSize = 20

type Handler struct {
	svc    *notification.Service
	broker messaging.Broker
}

func NewHandler(svc *notification.Service, broker messaging.Broker) *Handler {
	return &Handler{svc: svc, broker: broker}
}

// RegisterRoutes mounts the user-facing inbox endpoints. The producer
// endpoint is registered separately so it can carry its own auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	n := r.Group("/notifications")
	{
		n.GET("", h.List)
		n.GET("/unread-count", h.UnreadCount)
		n.GET("/stream", h.Stream)
		n.POST("/:id/read", h.MarkRead)
		n.POST("/:id/unread", h.MarkUnread)
		n.POST("/read-all", h.MarkAllRead)
		n.POST("/seen", h.MarkSeen)
	}
}

// RegisterProducerRoutes mounts the service-to-service create endpoint.
func (h *Handler) RegisterProducerRoutes(r *gin.RouterGroup) {
	r.POST("/notifications", h.Create)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rec, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rec))
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req model.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	filter := model.NotificationFilter(req.Filter)
	if !filter.Valid() {
		filter = model.NotificationFilterAll
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	items, err := h.svc.FetchPage(c.Request.Context(), userID, filter, req.Offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"items":     items,
		"filter":    filter,
		"offset":    req.Offset,
		"exhausted": len(items) < limit,
	}))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	n, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"unread": n}))
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), userID, id, time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("marked read"))
}

func (h *Handler) MarkUnread(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.svc.MarkUnread(c.Request.Context(), userID, id); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("marked unread"))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), userID, time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("all marked read"))
}

func (h *Handler) MarkSeen(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req model.MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
			return
		}
		ids = append(ids, id)
	}

	if err := h.svc.MarkSeen(c.Request.Context(), userID, ids, time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("marked seen"))
}

// Stream pushes the user's live feed over server-sent events. The client's
// inbox merges each event; redelivery after a reconnect is harmless.
func (h *Handler) Stream(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	msgs, err := h.broker.Subscribe(c.Request.Context(), messaging.UserChannel(userID))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, handler.NewErrorResponse("live feed unavailable"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case payload, open := <-msgs:
			if !open {
				return false
			}
			c.SSEvent("notification", string(payload))
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", strconv.FormatInt(time.Now().Unix(), 10))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
