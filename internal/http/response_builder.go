// Package http provides HTTP server and handler implementations.
//
// This file implements the builder for JSON API responses. Every response
// body is an envelope carrying the payload and an optional user-facing
// notification that the page shows as a toast.

package http

import (
	"encoding/json"
	"net/http"
)

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is the toast shown by the page.
type Notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration_ms,omitempty"`
}

// ErrorBody describes a failed request. Detail holds structured data such
// as the ceiling of a rejected investment.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

type envelope struct {
	Data         any           `json:"data,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Error        *ErrorBody    `json:"error,omitempty"`
}

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       envelope
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.body.Data = v
	return b
}

// Notify attaches a notification with the default duration for its type.
func (b *ResponseBuilder) Notify(t NotificationType, message string) *ResponseBuilder {
	duration := 3000
	if t == NotificationError || t == NotificationWarning {
		duration = 5000
	}
	b.body.Notification = &Notification{Type: t, Message: message, Duration: duration}
	return b
}

// Success is a convenience method for success notifications.
func (b *ResponseBuilder) Success(message string) *ResponseBuilder {
	return b.Notify(NotificationSuccess, message)
}

// Fail sets the error body and an error notification with the same message.
func (b *ResponseBuilder) Fail(code, message string, detail any) *ResponseBuilder {
	b.body.Error = &ErrorBody{Code: code, Message: message, Detail: detail}
	return b.Notify(NotificationError, message)
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	payload, err := json.Marshal(b.body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"failed to encode response"}}`))
		return
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).Fail(code, message, nil)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, "invalid", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", message)
}
