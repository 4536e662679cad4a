package handlers

import (
	"time"

	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ReminderHandler struct {
	reminderService *services.ReminderService
	holidays        *services.HolidayService
}

func NewReminderHandler(reminders *services.ReminderService, holidays *services.HolidayService) *ReminderHandler {
	return &ReminderHandler{reminderService: reminders, holidays: holidays}
}

// Process runs one reminder pass immediately
// POST /api/reminders/process
func (h *ReminderHandler) Process(c *gin.Context) {
	result, err := h.reminderService.Run(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetSettings returns a user's reminder settings, or the defaults
// GET /api/reminders/settings/:userId
func (h *ReminderHandler) GetSettings(c *gin.Context) {
	v := middleware.CurrentViewer(c)
	userID := c.Param("userId")
	if userID != v.ID && !v.IsAdmin() {
		response.Forbidden(c, "you can only read your own reminder settings")
		return
	}

	var projectID *string
	if p := c.Query("project_id"); p != "" {
		projectID = &p
	}
	settings, err := h.reminderService.GetSettings(c.Request.Context(), userID, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, settings)
}

// SaveSettings upserts the caller's reminder settings
// POST /api/reminders/settings
func (h *ReminderHandler) SaveSettings(c *gin.Context) {
	var req services.ReminderSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	settings, err := h.reminderService.SaveSettings(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, settings)
}

// History lists reminders sent for an invoice
// GET /api/reminders/history/:invoiceId
func (h *ReminderHandler) History(c *gin.Context) {
	records, err := h.reminderService.History(c.Request.Context(), c.Param("invoiceId"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, records)
}

// Countries lists holiday calendars reminders can pause on
// GET /api/reminders/holiday-countries
func (h *ReminderHandler) Countries(c *gin.Context) {
	response.Success(c, h.holidays.GetSupportedCountries())
}
