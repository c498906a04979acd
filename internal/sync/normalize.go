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

import (
	"time"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
)

// StatusUnknown is the status recorded when the provider omits one.
const StatusUnknown = "UNKNOWN"

// Normalize converts a raw wire record into its canonical snapshot.
//
// A record without an ID has no identity and is rejected with a
// MalformedRecordError. Missing optional fields get defaults: the label falls
// back to the name, the status to StatusUnknown. An unparseable timestamp is
// tolerated and left zero rather than failing the record.
func Normalize(index int, rec provider.AppRecord) (provider.Application, error) {
	if rec.ID == "" {
		return provider.Application{}, &MalformedRecordError{
			Index:  index,
			Reason: "missing id",
		}
	}

	app := provider.Application{
		ID:             rec.ID,
		Name:           rec.Name,
		Label:          rec.Label,
		Status:         rec.Status,
		AssignedGroups: rec.AssignedGroups,
	}

	if app.Label == "" {
		app.Label = rec.Name
	}
	if app.Status == "" {
		app.Status = StatusUnknown
	}

	if rec.LastModified != "" {
		if ts, err := time.Parse(time.RFC3339, rec.LastModified); err == nil {
			app.LastModified = ts
		}
	}

	return app, nil
}
