package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// Code identifies a machine-readable API error category. It stands in for the wire-protocol error taxonomy that
// would otherwise come from a shared protocol module; this repo defines its own since it owns both ends of the API.
type Code string

const (
	ValidationError Code = "validation_error"
	InvalidBody     Code = "invalid_body"
	Unauthorised    Code = "unauthorised"
	NotFound        Code = "not_found"
	RateLimited     Code = "rate_limited"
	InternalError   Code = "internal_error"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorBody holds structured error details.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, code, and message.
func Fail(c fiber.Ctx, status int, code Code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}
