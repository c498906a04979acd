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

// Package provider implements the identity provider's REST API surface used
// by the connector: the application inventory list endpoint and the per-user
// group membership endpoints.
//
// Endpoint paths and payload schemas follow the provider's published
// contract; this package conforms to it rather than redefining it. Fetching
// users or hosts in bulk is deliberately unsupported: user identity always
// arrives from the host framework.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/pagination"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

const (
	appsPath   = "/api/v1/apps"
	groupsPath = "/api/v1/groups"

	// DefaultPageSize is the list page size when none is configured.
	DefaultPageSize = 200
)

// Client exposes the provider operations the connector needs.
type Client struct {
	transport *transport.Client
	pageSize  int
	logger    *slog.Logger
}

// NewClient creates a provider client on top of an authenticated transport.
func NewClient(t *transport.Client, pageSize int, logger *slog.Logger) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		transport: t,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// ListApplications fetches one page of the application inventory starting at
// cursor. An empty cursor requests the first page; an empty Next cursor in
// the result marks the final page.
func (c *Client) ListApplications(ctx context.Context, cursor string) (*pagination.Page[AppRecord], error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("after", cursor)
	}

	resp, err := c.transport.Do(ctx, http.MethodGet, appsPath, q, nil)
	if err != nil {
		return nil, err
	}

	var envelope appListEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed application list response: %w", err)
	}

	return &pagination.Page[AppRecord]{
		Items: envelope.Items,
		Next:  envelope.Next,
	}, nil
}

// Validate probes the provider with a minimal authenticated read to verify
// the configured base URL and credential. Run once at connector activation.
func (c *Client) Validate(ctx context.Context) error {
	q := url.Values{}
	q.Set("limit", "1")

	resp, err := c.transport.Do(ctx, http.MethodGet, appsPath, q, nil)
	if err != nil {
		if transport.IsAuth(err) {
			return fmt.Errorf("credential rejected by provider: %w", err)
		}
		return fmt.Errorf("provider unreachable or misconfigured: %w", err)
	}

	var envelope appListEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return fmt.Errorf("unexpected response from provider, verify base URL: %w", err)
	}
	return nil
}
