package handlers

import (
	"time"

	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	auditService    *services.AuditService
	deadlineService *services.DeadlineService
}

func NewAdminHandler(audit *services.AuditService, deadlines *services.DeadlineService) *AdminHandler {
	return &AdminHandler{auditService: audit, deadlineService: deadlines}
}

// AuditLogs searches the audit trail
// GET /api/audit-logs
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	var req services.AuditListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auditService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// RunDeadlineSweep runs the deadline sweep now
// POST /api/admin/sweeps/deadlines
func (h *AdminHandler) RunDeadlineSweep(c *gin.Context) {
	result, err := h.deadlineService.Run(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Warnings)
}
