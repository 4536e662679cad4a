package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	contractService *services.ContractService
}

func NewContractHandler(contracts *services.ContractService) *ContractHandler {
	return &ContractHandler{contractService: contracts}
}

// Create drafts a contract for a project; the freelancer signs on creation
// POST /api/contracts/create
func (h *ContractHandler) Create(c *gin.Context) {
	var req services.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	contract, warnings, err := h.contractService.Create(c.Request.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respondCreated(c, contract, warnings)
}

type signRequest struct {
	Signature string `json:"signature"`
	UserType  string `json:"user_type"` // defaults to the caller's role
}

// Sign records the caller's signature
// POST /api/contracts/:id/sign
func (h *ContractHandler) Sign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.UserType == "" {
		req.UserType = middleware.GetRole(c)
	}

	result, err := h.contractService.Sign(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.UserType, req.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Warnings)
}

// Reject lets the client turn a contract down
// POST /api/contracts/:id/reject
func (h *ContractHandler) Reject(c *gin.Context) {
	var req services.RejectContractRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, warnings, err := h.contractService.Reject(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, contract, warnings)
}

// GetByID returns a contract to one of its parties
// GET /api/contracts/:id
func (h *ContractHandler) GetByID(c *gin.Context) {
	contract, err := h.contractService.Get(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, contract)
}

type contractStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus completes or terminates an active contract
// PUT /api/contracts/:id/status
func (h *ContractHandler) UpdateStatus(c *gin.Context) {
	var req contractStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	contract, warnings, err := h.contractService.UpdateStatus(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, contract, warnings)
}

// Delete removes a contract
// DELETE /api/contracts/:id
func (h *ContractHandler) Delete(c *gin.Context) {
	if err := h.contractService.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "contract deleted successfully"})
}
