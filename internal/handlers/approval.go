package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService *services.ApprovalService
}

func NewApprovalHandler(approvals *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvals}
}

// Approve accepts a delivered milestone and raises the invoice it triggers
// POST /api/approvals/milestone/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	result, err := h.approvalService.ApproveMilestone(c.Request.Context(), c.Query("project_id"), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Warnings)
}

type revisionRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// Reject sends a milestone back for revision
// POST /api/approvals/milestone/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req revisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.approvalService.RequestRevision(c.Request.Context(), c.Query("project_id"), c.Param("id"), middleware.CurrentViewer(c), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Warnings)
}

// Pending lists milestones waiting on the client
// GET /api/approvals/pending/:clientId
func (h *ApprovalHandler) Pending(c *gin.Context) {
	v := middleware.CurrentViewer(c)
	if clientID := c.Param("clientId"); clientID != v.ID {
		if !v.IsAdmin() {
			response.Forbidden(c, "you can only list your own pending approvals")
			return
		}
		v = services.Viewer{ID: clientID}
	}

	pending, err := h.approvalService.PendingApprovals(c.Request.Context(), v)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, pending)
}
