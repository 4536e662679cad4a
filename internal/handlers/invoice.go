package handlers

import (
	"fmt"
	"net/http"

	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService *services.InvoiceService
}

func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoices}
}

// Create issues a manual invoice from the calling freelancer
// POST /api/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req services.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	v := middleware.CurrentViewer(c)
	switch {
	case v.IsAdmin():
	case v.Role == models.RoleFreelancer:
		req.FreelancerID = v.ID
	default:
		response.Forbidden(c, "only freelancers can issue invoices")
		return
	}

	invoice, warnings, err := h.invoiceService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	respondCreated(c, invoice, warnings)
}

// List returns invoices the caller issued or owes
// GET /api/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var req services.InvoiceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.invoiceService.List(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// GetByID returns an invoice with its line items
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	invoice, err := h.invoiceService.Get(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, invoice)
}

// PDF downloads the invoice document
// GET /api/invoices/:id/pdf
func (h *InvoiceHandler) PDF(c *gin.Context) {
	filename, data, err := h.invoiceService.PDF(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Approve confirms an invoice on the client side
// POST /api/invoices/:id/approve
func (h *InvoiceHandler) Approve(c *gin.Context) {
	invoice, warnings, err := h.invoiceService.Approve(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, invoice, warnings)
}

// Pay records a payment for the invoice
// POST /api/invoices/:id/pay
func (h *InvoiceHandler) Pay(c *gin.Context) {
	var req services.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, warnings, err := h.invoiceService.RecordPayment(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c), req.PaymentMethod)
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, warnings)
}

// Delete removes an unpaid invoice
// DELETE /api/invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	if err := h.invoiceService.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "invoice deleted successfully"})
}
