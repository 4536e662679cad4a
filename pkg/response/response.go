package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the unified API envelope: {success, data?, error?, warning?}.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// Error kinds
const (
	KindValidation            = "validation_error"
	KindNotFound              = "not_found"
	KindForbidden             = "forbidden"
	KindUnauthorized          = "unauthorized"
	KindConflict              = "conflict"
	KindRevisionLimitExceeded = "revision_limit_exceeded"
	KindExternalService       = "external_service_error"
	KindInternal              = "internal_error"
)

// AppError represents a structured application error with HTTP status and kind.
type AppError struct {
	HTTPStatus int    // HTTP status code (e.g. 400, 404, 500)
	Kind       string // one of the Kind* constants
	Message    string // Human-readable error message
	Err        error  // optional wrapped cause, never exposed to clients
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError of the same kind, so errors.Is(err, ErrForbidden) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation            = &AppError{Kind: KindValidation}
	ErrNotFound              = &AppError{Kind: KindNotFound}
	ErrForbidden             = &AppError{Kind: KindForbidden}
	ErrUnauthorized          = &AppError{Kind: KindUnauthorized}
	ErrConflict              = &AppError{Kind: KindConflict}
	ErrRevisionLimitExceeded = &AppError{Kind: KindRevisionLimitExceeded}
	ErrExternalService       = &AppError{Kind: KindExternalService}
)

func NewValidation(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Kind: KindValidation, Message: msg}
}

// NewBadRequest is kept as an alias of NewValidation for request binding failures.
func NewBadRequest(msg string) *AppError {
	return NewValidation(msg)
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Kind: KindUnauthorized, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusForbidden, Kind: KindForbidden, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusNotFound, Kind: KindNotFound, Message: msg}
}

func NewConflict(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusConflict, Kind: KindConflict, Message: msg}
}

func NewRevisionLimitExceeded(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Kind: KindRevisionLimitExceeded, Message: msg}
}

func NewExternalService(msg string, cause error) *AppError {
	return &AppError{HTTPStatus: http.StatusBadGateway, Kind: KindExternalService, Message: msg, Err: cause}
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Kind: KindInternal, Message: msg}
}

// --- Gin response helpers ---

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SuccessWithWarning sends a 200 OK response whose primary action succeeded
// while a secondary step (email, PDF) did not.
func SuccessWithWarning(c *gin.Context, data interface{}, warning string) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Warning: warning})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Error sends an error response. If err is an *AppError, its kind and status
// are used; otherwise a generic 500 is returned without leaking internals.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Response{
			Success: false,
			Error:   appErr.Message,
			Kind:    appErr.Kind,
		})
		return
	}
	if gin.Mode() == gin.DebugMode {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: err.Error(), Kind: KindInternal})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal server error", Kind: KindInternal})
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Kind: KindValidation})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Success: false, Error: msg, Kind: KindUnauthorized})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Success: false, Error: msg, Kind: KindForbidden})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Success: false, Error: msg, Kind: KindNotFound})
}

func ServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: msg, Kind: KindInternal})
}
