package handlers

import (
	"github.com/freelancehub/backend/internal/middleware"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService  *services.ProjectService
	approvalService *services.ApprovalService
	taskService     *services.TaskService
	billableHours   *services.BillableHoursService
}

func NewProjectHandler(projects *services.ProjectService, approvals *services.ApprovalService, tasks *services.TaskService, billable *services.BillableHoursService) *ProjectHandler {
	return &ProjectHandler{
		projectService:  projects,
		approvalService: approvals,
		taskService:     tasks,
		billableHours:   billable,
	}
}

// List returns paginated projects
// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projectService.List(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// GetByID returns a project with its milestones
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	project, err := h.projectService.GetByID(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// Create creates a new project
// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, warnings, err := h.projectService.Create(c.Request.Context(), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respondCreated(c, project, warnings)
}

// Update updates a project
// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req services.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), c.Param("id"), &req, middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, project)
}

// Delete archives a project that has a client, or removes it otherwise
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	archived, err := h.projectService.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	message := "project deleted successfully"
	if archived {
		message = "project archived"
	}
	response.Success(c, gin.H{"message": message, "archived": archived})
}

// CompleteMilestone marks a milestone delivered and asks the client to review it
// POST /api/projects/:id/milestones/:milestoneId/complete
func (h *ProjectHandler) CompleteMilestone(c *gin.Context) {
	milestone, warnings, err := h.approvalService.CompleteMilestone(c.Request.Context(), c.Param("id"), c.Param("milestoneId"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, milestone, warnings)
}

// Comments lists the project discussion
// GET /api/projects/:id/comments
func (h *ProjectHandler) Comments(c *gin.Context) {
	comments, err := h.projectService.Comments(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, comments)
}

type addCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddComment posts to the project discussion
// POST /api/projects/:id/comments
func (h *ProjectHandler) AddComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	comment, err := h.projectService.AddComment(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c), req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}

// Tasks lists the project's tasks
// GET /api/projects/:id/tasks
func (h *ProjectHandler) Tasks(c *gin.Context) {
	tasks, err := h.taskService.List(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, tasks)
}

// BillableHours reports tracked billable hours against the contract cap
// GET /api/projects/:id/billable-hours
func (h *ProjectHandler) BillableHours(c *gin.Context) {
	project, err := h.projectService.GetByID(c.Request.Context(), c.Param("id"), middleware.CurrentViewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, h.billableHours.Calculate(c.Request.Context(), project.ID, project.HourlyRate, project.ContractID))
}
