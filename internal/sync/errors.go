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

package sync

import "fmt"

// MalformedRecordError describes a provider record that could not be
// normalized. Malformed records are skipped, never fatal: one bad record must
// not abort an inventory walk.
type MalformedRecordError struct {
	// Index is the record's position within its page.
	Index int

	// Reason describes what was wrong with the record.
	Reason string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at index %d: %s", e.Index, e.Reason)
}

// SyncFailedError is returned when an inventory sync aborts before draining
// the list. Cursor identifies the first unprocessed page so the next run can
// resume there.
type SyncFailedError struct {
	// Cursor is the resume point: the cursor of the first page not fully
	// processed.
	Cursor string

	// Pages is the number of pages fully processed before the failure.
	Pages int

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface.
func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("inventory sync failed after %d pages (resume cursor %q): %v",
		e.Pages, e.Cursor, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SyncFailedError) Unwrap() error {
	return e.Cause
}
