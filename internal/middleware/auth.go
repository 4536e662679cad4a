package middleware

import (
	"strings"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/freelancehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// RoleResolver maps an authenticated subject to its current role.
type RoleResolver interface {
	ResolveRole(userID string, claims *utils.Claims) (string, error)
}

// AuthRequired checks the bearer token and loads the caller's role from the
// resolver, so a role change applies to tokens already issued.
func AuthRequired(resolver RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, response.NewUnauthorized("authorization header required"))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abort(c, response.NewUnauthorized("invalid authorization header format"))
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			abort(c, response.NewUnauthorized("invalid or expired token"))
			return
		}

		role, err := resolver.ResolveRole(claims.UserID(), claims)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(ContextUserID, claims.UserID())
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, role)

		c.Next()
	}
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != models.RoleAdmin {
			abort(c, response.NewForbidden("admin access required"))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

// CurrentViewer returns the authenticated caller as seen by the services.
func CurrentViewer(c *gin.Context) services.Viewer {
	return services.Viewer{
		ID:    GetUserID(c),
		Email: GetEmail(c),
		Role:  GetRole(c),
	}
}
