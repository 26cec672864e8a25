// Package http provides the JSON API server and its handlers.
//
// This file implements a builder for JSON responses and the error envelope
// every failed request answers with.

package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"butce/internal/middleware/trace"
)

// ErrorCode is the machine-readable part of the error envelope.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "validation_error"
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeForbidden        ErrorCode = "forbidden"
	CodeNotFound         ErrorCode = "not_found"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeInternal         ErrorCode = "internal_error"
	CodeUnavailable      ErrorCode = "unavailable"
)

// Issues maps an input field to what is wrong with it.
type Issues map[string][]string

// Add appends msg to field's messages.
func (i Issues) Add(field, msg string) {
	i[field] = append(i[field], msg)
}

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Message   string    `json:"message"`
	Code      ErrorCode `json:"code"`
	RequestID string    `json:"requestId"`
	Issues    Issues    `json:"issues,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse builds the error envelope for r.
func ErrorResponse(r *http.Request, statusCode int, code ErrorCode, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{
			Message:   message,
			Code:      code,
			RequestID: trace.GetRequestID(r.Context()),
		})
}

// ValidationError creates a 422 response listing the invalid fields.
func ValidationError(r *http.Request, message string, issues Issues) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		Body(ErrorBody{
			Message:   message,
			Code:      CodeValidation,
			RequestID: trace.GetRequestID(r.Context()),
			Issues:    issues,
		})
}

func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, CodeBadRequest, message)
}

func UnauthorizedError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
}

func ForbiddenError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusForbidden, CodeForbidden, "Forbidden")
}

func NotFoundError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusNotFound, CodeNotFound, message)
}

func MethodNotAllowedError(r *http.Request, allowed []string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed").
		Header("Allow", strings.Join(allowed, ", "))
}

func RateLimitedError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")
}

// InternalServerError never carries error details to the client.
func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, CodeInternal, "Something went wrong")
}
