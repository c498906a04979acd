// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"errors"
	"fmt"
)

// ErrorType classifies transport errors for routing and retry decisions.
type ErrorType string

const (
	// ErrorTypeConnection indicates network or DNS errors
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout indicates request timeout or deadline exceeded
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeAuth indicates authentication failure (401, 403, bad or expired credential)
	ErrorTypeAuth ErrorType = "auth"

	// ErrorTypeRateLimit indicates rate limiting (429 Too Many Requests)
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer indicates server errors (5xx)
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeNotFound indicates the target resource does not exist (404)
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation indicates the provider rejected the request (other 4xx)
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeInvalidReq indicates request validation error (invalid method, URL, etc.)
	ErrorTypeInvalidReq ErrorType = "invalid_request"

	// ErrorTypeCancelled indicates context was cancelled
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error represents a structured error from transport execution.
// All provider API failures surface as *Error so callers can classify them
// with errors.As without parsing message text.
type Error struct {
	// Type classifies the error for routing and retry decisions
	Type ErrorType

	// StatusCode is the HTTP status code if applicable.
	// Zero for non-HTTP errors (connection, timeout, etc.)
	StatusCode int

	// Message is a user-facing error message with credentials redacted.
	// Safe to log and display.
	Message string

	// Retryable indicates whether the error is retryable
	Retryable bool

	// Cause is the underlying error.
	// May contain sensitive data; use Message for user-facing errors.
	Cause error

	// Metadata contains provider-specific debugging details
	// (e.g. the Retry-After header value for 429 responses).
	Metadata map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error should be retried.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// IsType returns true if err is a transport error of the given type.
func IsType(err error, t ErrorType) bool {
	var te *Error
	return errors.As(err, &te) && te.Type == t
}

// IsAuth reports whether err is a credential failure. Retrying cannot succeed;
// the caller should surface it to the host framework.
func IsAuth(err error) bool {
	return IsType(err, ErrorTypeAuth)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}
