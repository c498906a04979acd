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

package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

// Provider error codes carried in 4xx response bodies. The membership codes
// let the dispatcher distinguish "duplicate membership change" (a no-op) from
// a genuinely missing user or group.
const (
	CodeUserNotFound       = "user.not_found"
	CodeGroupNotFound      = "group.not_found"
	CodeMembershipExists   = "membership.exists"
	CodeMembershipNotFound = "membership.not_found"
)

// APIError is a structured provider error parsed from a response body.
type APIError struct {
	StatusCode int
	Code       string `json:"code,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s (status %d): %s", e.Code, e.StatusCode, e.Summary)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Summary)
}

// ParseAPIError extracts a structured APIError from a transport error, when
// the provider included a parseable JSON body. Returns nil when err carries
// no provider error payload.
func ParseAPIError(err error) *APIError {
	var te *transport.Error
	if !errors.As(err, &te) || te.StatusCode == 0 {
		return nil
	}

	apiErr := &APIError{StatusCode: te.StatusCode}

	// The transport embeds small error bodies in the message after the
	// "HTTP <code>: " prefix; the body is the authoritative source.
	if body := te.Metadata[transport.MetadataBody]; body != "" {
		_ = json.Unmarshal([]byte(body), apiErr)
	}

	return apiErr
}
