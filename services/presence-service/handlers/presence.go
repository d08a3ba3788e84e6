package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"officehub/services/presence-service/middleware"
	"officehub/services/presence-service/models"
	"officehub/services/presence-service/services"
	"officehub/services/presence-service/store"
	"officehub/utils"
)

type PresenceHandler struct {
	service           *services.PresenceService
	heartbeatInterval time.Duration
	logger            *utils.Logger
}

func NewPresenceHandler(service *services.PresenceService, heartbeatInterval time.Duration, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		service:           service,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// Register mounts the presence routes on rg.
func (h *PresenceHandler) Register(rg *gin.RouterGroup) {
	presence := rg.Group("/presence")
	{
		presence.POST("/heartbeat", h.Heartbeat)
		presence.POST("/offline", h.Offline)
		presence.GET("/online", h.ListOnline)
		presence.GET("/status/:user_id", h.GetStatus)
	}
}

// Heartbeat handles POST /api/v1/presence/heartbeat
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	userID, ok := h.resolveUserID(c)
	if !ok {
		return
	}

	if err := h.service.RecordHeartbeat(c.Request.Context(), userID); err != nil {
		h.respondError(c, "Failed to record heartbeat", userID, err)
		return
	}

	c.JSON(http.StatusOK, models.HeartbeatResponse{
		Status:                   "online",
		HeartbeatIntervalSeconds: int(h.heartbeatInterval / time.Second),
	})
}

// Offline handles POST /api/v1/presence/offline
func (h *PresenceHandler) Offline(c *gin.Context) {
	userID, ok := h.resolveUserID(c)
	if !ok {
		return
	}

	if err := h.service.RecordOffline(c.Request.Context(), userID); err != nil {
		h.respondError(c, "Failed to record offline", userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "offline"})
}

// ListOnline handles GET /api/v1/presence/online
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	var staleness time.Duration
	if raw := c.Query("staleness"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "staleness must be a positive duration such as 5m",
			})
			return
		}
		staleness = d
	}

	records, err := h.service.ListOnline(c.Request.Context(), staleness)
	if err != nil {
		h.logger.Error("Failed to list online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list online users",
		})
		return
	}

	users := make([]models.UserPresence, 0, len(records))
	for _, rec := range records {
		users = append(users, models.UserPresence{
			UserID:     rec.ID,
			Name:       rec.Name,
			IsOnline:   true,
			LastActive: rec.LastActive,
		})
	}

	c.JSON(http.StatusOK, models.OnlineUsersResponse{
		Count: len(users),
		Users: users,
	})
}

// GetStatus handles GET /api/v1/presence/status/:user_id
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	userID := c.Param("user_id")

	rec, err := h.service.GetStatus(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "Failed to get presence", userID, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		UserID:     rec.ID,
		IsOnline:   rec.IsOnline,
		LastActive: rec.LastActive,
	})
}

// resolveUserID prefers the authenticated user and falls back to the request body.
func (h *PresenceHandler) resolveUserID(c *gin.Context) (string, bool) {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return userID, true
	}

	var req models.PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return "", false
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id is required",
		})
		return "", false
	}
	return req.UserID, true
}

func (h *PresenceHandler) respondError(c *gin.Context, msg, userID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "User not found",
		})
		return
	}

	h.logger.Error(msg, "user_id", userID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": msg,
	})
}
