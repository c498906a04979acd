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

package action

import "fmt"

// UserNotFoundError is returned when the provider does not know the user an
// action targets. Not retryable: the identity came from the host framework
// and will not appear by waiting.
type UserNotFoundError struct {
	UserID string
}

// Error implements the error interface.
func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found in provider", e.UserID)
}

// GroupNotFoundError is returned when the target group does not exist. Not
// retryable: it signals a configuration problem, a deleted group or a
// mistyped ID.
type GroupNotFoundError struct {
	GroupID string
}

// Error implements the error interface.
func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("group %q not found in provider", e.GroupID)
}

// ActionFailedError is returned when a membership change failed for a reason
// other than a missing user or group.
type ActionFailedError struct {
	Op      Op
	UserID  string
	GroupID string
	Cause   error
}

// Error implements the error interface.
func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s user %q group %q failed: %v", e.Op, e.UserID, e.GroupID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ActionFailedError) Unwrap() error {
	return e.Cause
}
