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

// Package sync implements the application inventory synchronizer.
//
// A sync walks the provider's paginated application list, normalizes each
// record, and streams page-sized batches to the host sink. The cursor is
// checkpointed only after a page's batch has been durably handed off, so an
// interrupted sync resumes at the first unprocessed page instead of starting
// over.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/log"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/pagination"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/state"
)

// DefaultSyncID names the single inventory stream this connector syncs.
const DefaultSyncID = "app-inventory"

// Lister fetches one page of the provider's application inventory.
type Lister interface {
	ListApplications(ctx context.Context, cursor string) (*pagination.Page[provider.AppRecord], error)
}

// Sink receives normalized application batches from a sync. Implemented by
// the host framework; a batch is at most one provider page.
type Sink interface {
	HandleApplications(ctx context.Context, apps []provider.Application) error
}

// Config configures a synchronizer.
type Config struct {
	// SyncID names the checkpoint stream (default: DefaultSyncID)
	SyncID string

	// MaxPages caps pages per sync (default: pagination.DefaultMaxPages)
	MaxPages int
}

// Result summarizes a completed sync.
type Result struct {
	// Applications is the number of normalized records delivered to the sink.
	Applications int

	// Pages is the number of pages fully processed.
	Pages int

	// Skipped is the number of malformed records dropped.
	Skipped int

	// Resumed reports whether the sync started from a persisted checkpoint.
	Resumed bool
}

// Synchronizer drives inventory syncs.
type Synchronizer struct {
	lister Lister
	sink   Sink
	store  *state.Store
	config Config
	logger *slog.Logger
}

// NewSynchronizer creates a synchronizer. store may be nil, which disables
// checkpointing (every sync starts from the first page).
func NewSynchronizer(lister Lister, sink Sink, store *state.Store, config Config, logger *slog.Logger) *Synchronizer {
	if config.SyncID == "" {
		config.SyncID = DefaultSyncID
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{
		lister: lister,
		sink:   sink,
		store:  store,
		config: config,
		logger: logger,
	}
}

// Sync walks the full application inventory and streams it to the sink.
// On failure it returns a SyncFailedError carrying the resume cursor, which
// is also persisted so the next Sync picks up where this one stopped.
func (s *Synchronizer) Sync(ctx context.Context) (*Result, error) {
	result := &Result{}
	began := time.Now()
	logger := log.WithCycle(s.logger, uuid.NewString())

	start, err := s.loadCursor(ctx)
	if err != nil {
		return nil, err
	}
	result.Resumed = start != ""

	logger.Info("starting inventory sync",
		slog.String("sync_id", s.config.SyncID),
		slog.Bool("resumed", result.Resumed),
	)

	walker := &pagination.Walker[provider.AppRecord]{MaxPages: s.config.MaxPages}

	resume, walkErr := walker.Walk(ctx, start, s.lister.ListApplications, func(page *pagination.Page[provider.AppRecord]) error {
		batch := make([]provider.Application, 0, len(page.Items))
		for i, rec := range page.Items {
			app, err := Normalize(i, rec)
			if err != nil {
				result.Skipped++
				logger.Warn("skipping malformed record",
					slog.Int(log.PageKey, result.Pages),
					log.Error(err),
				)
				continue
			}
			batch = append(batch, app)
		}

		if len(batch) > 0 {
			if err := s.sink.HandleApplications(ctx, batch); err != nil {
				return fmt.Errorf("sink rejected batch: %w", err)
			}
		}

		result.Applications += len(batch)
		result.Pages++

		return s.commitCursor(ctx, page.Next, result.Pages)
	})

	if walkErr != nil {
		s.saveFailure(ctx, resume, result.Pages, walkErr)
		return nil, &SyncFailedError{
			Cursor: resume,
			Pages:  result.Pages,
			Cause:  walkErr,
		}
	}

	logger.Info("inventory sync complete",
		slog.String("sync_id", s.config.SyncID),
		slog.Int("pages", result.Pages),
		slog.Int("applications", result.Applications),
		slog.Int("skipped", result.Skipped),
		log.Duration(time.Since(began).Milliseconds()),
	)

	return result, nil
}

// loadCursor returns the persisted resume cursor, or empty for a fresh walk.
func (s *Synchronizer) loadCursor(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", nil
	}
	cp, err := s.store.GetCheckpoint(ctx, s.config.SyncID)
	if err != nil {
		return "", fmt.Errorf("failed to load sync checkpoint: %w", err)
	}
	if cp == nil {
		return "", nil
	}
	return cp.Cursor, nil
}

// commitCursor records that every page up to next has been handled. An empty
// next cursor means the list is drained, so the checkpoint is cleared and the
// following sync starts fresh. The write runs detached from ctx: the page was
// already handled, and cancellation must not lose that progress.
func (s *Synchronizer) commitCursor(ctx context.Context, next string, pages int) error {
	if s.store == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if next == "" {
		if err := s.store.ClearCheckpoint(ctx, s.config.SyncID); err != nil {
			return fmt.Errorf("failed to clear sync checkpoint: %w", err)
		}
		return nil
	}
	err := s.store.SaveCheckpoint(ctx, &state.Checkpoint{
		SyncID: s.config.SyncID,
		Cursor: next,
		Pages:  pages,
	})
	if err != nil {
		return fmt.Errorf("failed to save sync checkpoint: %w", err)
	}
	return nil
}

// saveFailure best-effort records the resume point and failure reason. Runs
// detached from ctx so a cancelled sync still persists its progress.
func (s *Synchronizer) saveFailure(ctx context.Context, cursor string, pages int, cause error) {
	if s.store == nil || cursor == "" {
		return
	}
	err := s.store.SaveCheckpoint(context.WithoutCancel(ctx), &state.Checkpoint{
		SyncID:    s.config.SyncID,
		Cursor:    cursor,
		Pages:     pages,
		LastError: cause.Error(),
	})
	if err != nil {
		s.logger.Warn("failed to persist sync failure checkpoint", log.Error(err))
	}
}
