package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type InvitationHandler struct {
	invitationService *services.InvitationService
}

func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitations}
}

// Create invites a client to a project
// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	var req services.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	inv, warnings, err := h.invitationService.Create(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respondCreated(c, gin.H{"invitation": inv, "link": h.invitationService.Link(inv.Token)}, warnings)
}

// GetByToken shows an invitation to the person holding its link
// GET /api/invitations/:token
func (h *InvitationHandler) GetByToken(c *gin.Context) {
	view, err := h.invitationService.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, view)
}

// Accept attaches the caller to the project as its client
// POST /api/invitations/:token/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	inv, warnings, err := h.invitationService.Accept(c.Request.Context(), c.Param("token"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, inv, warnings)
}

// Reject declines an invitation
// POST /api/invitations/:token/reject
func (h *InvitationHandler) Reject(c *gin.Context) {
	inv, warnings, err := h.invitationService.Reject(c.Request.Context(), c.Param("token"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, inv, warnings)
}
