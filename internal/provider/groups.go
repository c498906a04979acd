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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/log"
)

// AddUserToGroup adds the user to the group via the provider's per-user,
// per-group membership endpoint. The raw provider response is NOT normalized
// here: a duplicate-membership rejection surfaces as its transport/API error
// so the dispatcher can decide idempotency policy.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	path := fmt.Sprintf("%s/%s/users/%s", groupsPath, url.PathEscape(groupID), url.PathEscape(userID))

	c.logger.Debug("adding user to group",
		slog.String(log.UserIDKey, userID),
		slog.String(log.GroupIDKey, groupID),
	)

	_, err := c.transport.Do(ctx, http.MethodPut, path, nil, nil)
	return err
}

// RemoveUserFromGroup removes the user from the group. As with
// AddUserToGroup, duplicate-removal errors pass through unnormalized.
func (c *Client) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	path := fmt.Sprintf("%s/%s/users/%s", groupsPath, url.PathEscape(groupID), url.PathEscape(userID))

	c.logger.Debug("removing user from group",
		slog.String(log.UserIDKey, userID),
		slog.String(log.GroupIDKey, groupID),
	)

	_, err := c.transport.Do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// GetGroup fetches a single group by ID. Used to attribute ambiguous 404s on
// membership endpoints to the group or the user.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*GroupRef, error) {
	path := fmt.Sprintf("%s/%s", groupsPath, url.PathEscape(groupID))

	resp, err := c.transport.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope groupEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed group response: %w", err)
	}

	return &GroupRef{ID: envelope.ID, Name: envelope.Name}, nil
}
