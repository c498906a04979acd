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

package risk

import (
	"fmt"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/action"
)

// PartialPushError reports a push that applied only half of a tier
// transition. It names the side that failed; retrying the same push converges
// because the completed side is already durable and will not be re-issued.
type PartialPushError struct {
	// UserID is the user whose transition is half-applied.
	UserID string

	// FailedOp is the membership operation that failed.
	FailedOp action.Op

	// FailedGroupID is the group the failed operation targeted.
	FailedGroupID string

	// RemoveDone reports whether the old tier's REMOVE completed before the
	// failure.
	RemoveDone bool

	// Cause is the underlying dispatcher failure.
	Cause error
}

// Error implements the error interface.
func (e *PartialPushError) Error() string {
	return fmt.Sprintf("partial push for user %q: %s on group %q failed (remove done: %t): %v",
		e.UserID, e.FailedOp, e.FailedGroupID, e.RemoveDone, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PartialPushError) Unwrap() error {
	return e.Cause
}
