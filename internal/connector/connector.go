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

// Package connector assembles the identity-provider risk connector and
// exposes the surface the host framework calls: inventory sync, direct group
// membership changes, risk-score pushes, and configuration validation.
//
// The host owns scheduling. The connector runs no background loops; every
// operation executes within the caller's invocation and context.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/action"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/log"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/ratelimit"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/risk"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/state"
	syncpkg "github.com/tanushreekurup-crest/idp-risk-connector/internal/sync"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

const defaultUserAgent = "idp-risk-connector/1.0"

// Connector is the assembled connector. Safe for concurrent use: all
// operations share one transport and admission bucket.
type Connector struct {
	config       *Config
	provider     *provider.Client
	synchronizer *syncpkg.Synchronizer
	dispatcher   *action.Dispatcher
	pusher       *risk.Pusher
	store        *state.Store
	bucket       *ratelimit.Bucket
	logger       *slog.Logger
}

// New builds a connector from configuration. sink receives normalized
// application batches during Sync. PushRiskScore is available only when the
// configuration declares risk bands.
func New(cfg *Config, sink syncpkg.Sink, logger *slog.Logger) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connector configuration: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("application sink is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bucket := ratelimit.New(cfg.rateLimitConfig())

	tc, err := transport.NewClient(cfg.transportConfig(), bucket,
		log.WithComponent(logger, "transport"))
	if err != nil {
		return nil, err
	}

	store, err := state.NewStore(state.Config{Path: cfg.StatePath})
	if err != nil {
		return nil, err
	}

	pc := provider.NewClient(tc, cfg.PageSize, log.WithComponent(logger, "provider"))

	c := &Connector{
		config:   cfg,
		provider: pc,
		synchronizer: syncpkg.NewSynchronizer(pc, sink, store,
			syncpkg.Config{MaxPages: cfg.MaxPages}, log.WithComponent(logger, "sync")),
		dispatcher: action.NewDispatcher(pc, cfg.MaxConcurrentActions,
			log.WithComponent(logger, "action")),
		store:  store,
		bucket: bucket,
		logger: logger,
	}

	if len(cfg.RiskBands) > 0 {
		pusher, err := risk.NewPusher(c.dispatcher, cfg.RiskBands, store,
			log.WithComponent(logger, "risk"))
		if err != nil {
			store.Close()
			return nil, err
		}
		c.pusher = pusher
	}

	return c, nil
}

// Sync runs one inventory sync cycle, streaming normalized applications to
// the sink. Resumes from the persisted cursor when the prior cycle aborted.
func (c *Connector) Sync(ctx context.Context) (*syncpkg.Result, error) {
	start := time.Now()

	result, err := c.synchronizer.Sync(ctx)
	if err != nil {
		recordSync(outcomeError, time.Since(start))
		return nil, err
	}

	recordSync(outcomeSuccess, time.Since(start))
	syncApplications.Add(float64(result.Applications))
	syncSkippedRecords.Add(float64(result.Skipped))
	return result, nil
}

// AddToGroup adds the user to the group. Idempotent: adding an existing
// member succeeds as a no-op.
func (c *Connector) AddToGroup(ctx context.Context, userID, groupID string) error {
	return c.applyDirect(ctx, action.Request{
		UserID:  userID,
		GroupID: groupID,
		Op:      action.OpAdd,
	})
}

// RemoveFromGroup removes the user from the group. Idempotent: removing a
// non-member succeeds as a no-op.
func (c *Connector) RemoveFromGroup(ctx context.Context, userID, groupID string) error {
	return c.applyDirect(ctx, action.Request{
		UserID:  userID,
		GroupID: groupID,
		Op:      action.OpRemove,
	})
}

func (c *Connector) applyDirect(ctx context.Context, req action.Request) error {
	res, err := c.dispatcher.Apply(ctx, req)
	if err != nil {
		recordAction(string(req.Op), outcomeError)
		return err
	}
	if res.NoOp {
		recordAction(string(req.Op), outcomeNoOp)
	} else {
		recordAction(string(req.Op), outcomeSuccess)
	}
	return nil
}

// PushRiskScore moves the user into the tier group their score maps to.
// Fails when the configuration declares no risk bands.
func (c *Connector) PushRiskScore(ctx context.Context, userID string, score int) (*risk.PushResult, error) {
	if c.pusher == nil {
		return nil, fmt.Errorf("risk_bands not configured, cannot push risk scores")
	}

	result, err := c.pusher.Push(ctx, userID, score)
	if err != nil {
		var partial *risk.PartialPushError
		if errors.As(err, &partial) {
			recordPush(outcomePartial)
		} else {
			recordPush(outcomeError)
		}
		return nil, err
	}

	recordPush(outcomeSuccess)
	return result, nil
}

// Validate probes the provider to verify the base URL and credential.
func (c *Connector) Validate(ctx context.Context) error {
	return c.provider.Validate(ctx)
}

// Close releases the connector's persistent resources.
func (c *Connector) Close() error {
	return c.store.Close()
}
