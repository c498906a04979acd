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

import "time"

// GroupRef identifies a provider group. Identity is the provider-assigned ID;
// the name is descriptive only and may change between sync cycles.
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Application is the normalized snapshot of a provider application.
// Identity key is the provider-assigned ID, so re-ingesting the same record
// overwrites rather than duplicates downstream.
type Application struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Label          string     `json:"label"`
	Status         string     `json:"status"`
	AssignedGroups []GroupRef `json:"assigned_groups,omitempty"`
	LastModified   time.Time  `json:"last_modified,omitempty"`
}

// AppRecord is the raw application shape on the wire. Optional fields may be
// absent; normalization happens in the sync layer.
type AppRecord struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	Label          string     `json:"label,omitempty"`
	Status         string     `json:"status,omitempty"`
	AssignedGroups []GroupRef `json:"assigned_groups,omitempty"`
	LastModified   string     `json:"last_modified,omitempty"`
}

// appListEnvelope is the provider's list response. An absent or empty "next"
// token marks the final page.
type appListEnvelope struct {
	Items []AppRecord `json:"items"`
	Next  string      `json:"next,omitempty"`
}

// groupEnvelope is the provider's single-group response.
type groupEnvelope struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
