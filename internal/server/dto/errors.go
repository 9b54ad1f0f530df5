// Package dto defines API request/response types and error handling.
//
// This package is the API contract layer:
//   - Request types with path/query/json struct tags for parameter binding
//   - Response types with plain JSON-friendly fields
//   - Structured error types with HTTP status codes and error codes
//
// It is fully self-contained with no dependency on the domain packages, so
// internal model changes cannot leak into the wire contract. Conversion
// between dto and domain types lives in the server package.
package dto

import (
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrorCodeStoreOpenFailed is returned when the record store cannot open.
	ErrorCodeStoreOpenFailed ErrorCode = "STORE_OPEN_FAILED"
	// ErrorCodeWriteFailed is returned when a record write fails.
	ErrorCodeWriteFailed ErrorCode = "WRITE_FAILED"
	// ErrorCodeBlobStore is returned when the photo blob store fails.
	ErrorCodeBlobStore ErrorCode = "BLOB_STORE_ERROR"
	// ErrorCodeImageDecode is returned when an upload is not a decodable image.
	ErrorCodeImageDecode ErrorCode = "IMAGE_DECODE_FAILED"

	// ErrorCodePayloadTooLarge is returned when a request body exceeds quota.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimited is returned when the client exceeds a rate limit.
	ErrorCodeRateLimited ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeNoUpdateWaiting is returned by skip-waiting with nothing staged.
	ErrorCodeNoUpdateWaiting ErrorCode = "NO_UPDATE_WAITING"
	// ErrorCodeGeoUnavailable is returned when geolocation is not configured.
	ErrorCodeGeoUnavailable ErrorCode = "GEO_UNAVAILABLE"
	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// WriteFailed creates a 500 error for a record store write failure.
func WriteFailed(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeWriteFailed, "record write failed").Wrap(err)
}

// BlobStore creates a 500 error for a photo blob store failure.
func BlobStore(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeBlobStore, "photo storage failed").Wrap(err)
}

// ImageDecode creates a 400 error for an undecodable image upload.
func ImageDecode(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeImageDecode, "uploaded data is not a decodable image").Wrap(err)
}

// PayloadTooLarge creates a 413 error carrying the configured limit.
func PayloadTooLarge(limitBytes int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "request body too large").
		WithDetail("limitBytes", limitBytes)
}

// RateLimitExceeded creates a 429 error carrying the retry delay.
func RateLimitExceeded(retryAfterSeconds int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded").
		WithDetail("retryAfterSeconds", retryAfterSeconds)
}

// NoUpdateWaiting creates a 409 error for skip-waiting with nothing staged.
func NoUpdateWaiting() *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeNoUpdateWaiting, "no update waiting")
}

// GeoUnavailable creates a 503 error for missing geolocation capability.
func GeoUnavailable(reason string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrorCodeGeoUnavailable, "geolocation unavailable: "+reason)
}
