package handlers

import (
	"net/http"
	"strings"

	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// respond sends a 200 envelope and folds effect warnings into it.
func respond(c *gin.Context, data interface{}, warnings []string) {
	respondStatus(c, http.StatusOK, data, warnings)
}

func respondCreated(c *gin.Context, data interface{}, warnings []string) {
	respondStatus(c, http.StatusCreated, data, warnings)
}

func respondStatus(c *gin.Context, status int, data interface{}, warnings []string) {
	c.JSON(status, response.Response{
		Success: true,
		Data:    data,
		Warning: strings.Join(warnings, "; "),
	})
}

// bindJSON binds an optional JSON body; an empty body leaves req untouched.
func bindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}
