package middleware

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/freelancehub/backend/internal/services"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry services.AuditEntry) error
}

// AuditLog records authenticated write operations (POST/PUT/DELETE) as
// api_request audit entries.
func AuditLog(recorder AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		// Only audit write operations
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		// Capture request body (up to 2000 chars)
		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > 2000 {
				bodySnippet = bodySnippet[:2000] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		entityType, action := parseRouteInfo(c.FullPath(), method)
		entry := services.AuditEntry{
			EventType:  "api_request",
			ActorID:    GetUserID(c),
			EntityType: entityType,
			EntityID:   c.Param("id"),
			Message:    formatAuditMessage(GetEmail(c), method, c.Request.URL.Path, status),
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Details: map[string]interface{}{
				"action":     action,
				"method":     method,
				"path":       c.Request.URL.Path,
				"status":     status,
				"body":       bodySnippet,
				"request_id": c.GetString("request_id"),
			},
		}
		if err := recorder.Record(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("[Audit] failed to record request")
		}
	}
}

// parseRouteInfo extracts the entity and action from a Gin route pattern.
// e.g. "/api/invoices/:id/pay" + "POST" gives entity="invoices", action="Create"
func parseRouteInfo(fullPath, method string) (entity, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")

	parts := strings.SplitN(path, "/", 2)
	entity = parts[0]
	if entity == "" {
		entity = "unknown"
	}

	// Determine action from HTTP method
	switch method {
	case "POST":
		action = "Create"
	case "PUT":
		action = "Update"
	case "DELETE":
		action = "Delete"
	default:
		action = method
	}

	return entity, action
}

// formatAuditMessage creates a human-readable audit message.
func formatAuditMessage(actor, method, path string, status int) string {
	if actor == "" {
		actor = "anonymous"
	}
	var b strings.Builder
	b.WriteString(actor)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

// maskSensitiveFields replaces sensitive values in JSON body
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "old_password", "new_password", "refresh_token", "token", "signature"}
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			// Simple mask: replace the value after the key
			body = maskJSONValue(body, key)
		}
	}
	return body
}

// maskJSONValue does a best-effort mask of JSON string values for a given key
func maskJSONValue(body, key string) string {
	// Look for patterns like "key":"value" or "key": "value"
	lower := strings.ToLower(body)
	idx := strings.Index(lower, "\""+key+"\"")
	if idx == -1 {
		return body
	}

	// Find the colon after the key
	colonIdx := strings.Index(body[idx+len(key)+2:], ":")
	if colonIdx == -1 {
		return body
	}
	valueStart := idx + len(key) + 2 + colonIdx + 1

	// Skip whitespace
	for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
		valueStart++
	}

	if valueStart >= len(body) {
		return body
	}

	// If it's a quoted string, mask it
	if body[valueStart] == '"' {
		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		return body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
	}

	return body
}
