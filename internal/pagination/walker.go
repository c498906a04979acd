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

// Package pagination implements cursor-based page iteration over provider
// list endpoints.
//
// The walk is lazy and consumer-driven: the next page is fetched only after
// the handler has fully consumed the previous one, so a failure never loses
// more than the in-flight page. Restart granularity is the last cursor whose
// page the handler returned from without error.
package pagination

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxPages caps pages per walk when no explicit cap is configured.
// A well-behaved provider terminates long before this; the cap exists so a
// server that keeps echoing cursors cannot spin the walk forever.
const DefaultMaxPages = 10000

// ErrPageLimit is returned when a walk exceeds its page cap.
var ErrPageLimit = errors.New("pagination: page limit exceeded")

// ErrCursorRepeat is returned when the provider echoes the request cursor as
// the next cursor, which would loop forever.
var ErrCursorRepeat = errors.New("pagination: provider repeated cursor")

// Page is one page of provider records plus the cursor for the page after it.
// An empty Next cursor marks the end of the list.
type Page[T any] struct {
	Items []T
	Next  string
}

// FetchFunc fetches the page starting at cursor. An empty cursor requests the
// first page.
type FetchFunc[T any] func(ctx context.Context, cursor string) (*Page[T], error)

// HandleFunc consumes one fetched page. Returning an error aborts the walk
// without advancing past the page.
type HandleFunc[T any] func(page *Page[T]) error

// Walker drives cursor iteration over a list endpoint.
type Walker[T any] struct {
	// MaxPages caps pages per walk (default: DefaultMaxPages)
	MaxPages int
}

// Walk iterates pages from start until the provider reports no next cursor,
// invoking handle once per page in order.
//
// It returns the cursor identifying resumable progress: after normal
// termination that cursor is empty; after a failure it is the cursor of the
// first page that was NOT fully handled, so a subsequent Walk(start=cursor)
// re-fetches exactly that page. Cancellation is observed between pages, never
// mid-fetch.
func (w *Walker[T]) Walk(ctx context.Context, start string, fetch FetchFunc[T], handle HandleFunc[T]) (string, error) {
	maxPages := w.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	cursor := start
	for pages := 0; ; pages++ {
		if err := ctx.Err(); err != nil {
			return cursor, err
		}
		if pages >= maxPages {
			return cursor, fmt.Errorf("%w: walked %d pages from cursor %q", ErrPageLimit, pages, start)
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			return cursor, err
		}
		if page.Next != "" && page.Next == cursor {
			return cursor, fmt.Errorf("%w: cursor %q", ErrCursorRepeat, cursor)
		}

		if err := handle(page); err != nil {
			return cursor, err
		}

		if page.Next == "" {
			return "", nil
		}
		cursor = page.Next
	}
}
