package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboard}
}

// GetStats returns dashboard statistics for the caller
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	var req services.DashboardStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.dashboardService.GetStats(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}
