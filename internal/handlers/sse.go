package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sseKeepAlive = 25 * time.Second

// SSEHandler streams notifications to the browser as Server-Sent Events
type SSEHandler struct {
	hub      *services.SSEHub
	resolver middleware.RoleResolver
}

func NewSSEHandler(hub *services.SSEHub, resolver middleware.RoleResolver) *SSEHandler {
	return &SSEHandler{hub: hub, resolver: resolver}
}

// StreamNotifications pushes the caller's new notifications. EventSource
// cannot send headers, so the token may also come as a query parameter.
// GET /api/notifications/stream
func (h *SSEHandler) StreamNotifications(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		response.Unauthorized(c, "authorization required")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}
	if _, err := h.resolver.ResolveRole(claims.UserID(), claims); err != nil {
		response.Error(c, err)
		return
	}
	userID := claims.UserID()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID, userID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Str("user_id", userID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
