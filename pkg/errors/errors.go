// Package errors defines unified error types for sports-data provider operations.
// All provider-specific failures are mapped to these standard error types.
package errors

import (
	"fmt"
	"net/http"
)

// Category identifies the failure class of a provider error.
type Category string

// Failure categories, checked in this priority order during classification.
const (
	CategoryRateLimit      Category = "rate_limit"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryServerError    Category = "server_error"
	CategoryNetwork        Category = "network"
	CategoryDataError      Category = "data_error"
	CategoryDatabase       Category = "database"
	CategoryValidation     Category = "validation"
	CategoryUnknown        Category = "unknown"
)

// FeedError represents a standardized error from a sports-data provider.
// It contains all necessary information for error handling, logging, and
// recovery decisions.
type FeedError struct {
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message"`
	Category   Category `json:"category"`
	Provider   string   `json:"provider"`
	Retryable  bool     `json:"-"`
}

// Error implements the error interface.
func (e *FeedError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, code=%d)",
		e.Category, e.Message, e.Provider, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *FeedError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Category:   CategoryRateLimit,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Category:   CategoryAuthentication,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewAuthorizationError creates an authorization error (403).
func NewAuthorizationError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusForbidden,
		Message:    message,
		Category:   CategoryAuthorization,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewServerError creates a provider-side server error (5xx).
func NewServerError(provider string, statusCode int, message string) *FeedError {
	if statusCode < http.StatusInternalServerError {
		statusCode = http.StatusInternalServerError
	}
	return &FeedError{
		StatusCode: statusCode,
		Message:    message,
		Category:   CategoryServerError,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewNetworkError creates a transport-level error (timeout, abort, DNS).
func NewNetworkError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusRequestTimeout,
		Message:    message,
		Category:   CategoryNetwork,
		Provider:   provider,
		Retryable:  true,
	}
}

// NewDataError creates a malformed-payload error.
func NewDataError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    message,
		Category:   CategoryDataError,
		Provider:   provider,
		Retryable:  false,
	}
}

// NewValidationError creates a request-validation error.
func NewValidationError(provider, message string) *FeedError {
	return &FeedError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Category:   CategoryValidation,
		Provider:   provider,
		Retryable:  false,
	}
}
