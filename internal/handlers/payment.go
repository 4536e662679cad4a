package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: payments}
}

// Transactions lists payments the caller made or received
// GET /api/transactions
func (h *PaymentHandler) Transactions(c *gin.Context) {
	var req services.TransactionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.paymentService.ListTransactions(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}
