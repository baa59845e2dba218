// File: gateway/history.go
// Package gateway
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cursor-paginated REST reader over a channel's past messages, used to
// backfill application state. Self-imposed rate limiting: a fixed delay
// armed from each successful response, not reactive to server hints.

package gateway

import (
	"fmt"
	"time"

	"github.com/eapache/queue"

	"github.com/sugawarayuuta/sonnet"
)

// historyPageMax is the largest page the endpoint serves.
const historyPageMax = 100

// historyInterval is the fixed spacing between page fetches.
const historyInterval = 10 * time.Second

// History is one backfill pass over a channel. It is not safe for
// concurrent use; run one per goroutine.
type History struct {
	s       *Session
	baseURI string

	buf      *queue.Queue // buffered *Event page items
	lastID   string       // pagination cursor: id of the last item served
	haveLast bool

	remaining int
	bounded   bool

	nextAt   time.Time
	interval time.Duration
}

// History starts a paginated read of a channel's past messages, newest
// first. limit bounds the total item count; negative means unbounded.
// before, when non-empty, seeds the pagination cursor.
func (s *Session) History(channelID string, limit int, before string) *History {
	return &History{
		s:         s,
		baseURI:   fmt.Sprintf("/channels/%s/messages", channelID),
		buf:       queue.New(),
		lastID:    before,
		haveLast:  before != "",
		remaining: limit,
		bounded:   limit >= 0,
		interval:  historyInterval,
	}
}

// Next returns the next item, fetching a page when the buffer runs dry.
// It returns (nil, nil) once the feed is exhausted: either the budget
// reached zero or a page came back short, which this endpoint's
// pagination contract treats as the end of history.
func (h *History) Next() (*Event, error) {
	for {
		if h.buf.Length() > 0 {
			ev := h.buf.Remove().(*Event)
			h.lastID = ev.MessageID
			h.haveLast = true
			return ev, nil
		}

		pageLimit := historyPageMax
		if h.bounded {
			if h.remaining == 0 {
				return nil, nil
			}
			pageLimit = min(h.remaining, historyPageMax)
			h.remaining = max(h.remaining-historyPageMax, 0)
		}

		if !h.nextAt.IsZero() {
			if wait := time.Until(h.nextAt); wait > 0 {
				time.Sleep(wait)
			}
		}

		uri := fmt.Sprintf("%s?limit=%d", h.baseURI, pageLimit)
		if h.haveLast {
			uri = fmt.Sprintf("%s&before=%s", uri, h.lastID)
		}
		body, err := h.s.apiGet(uri)
		if err != nil {
			return nil, err
		}
		h.nextAt = time.Now().Add(h.interval)

		var page []messageReceived
		if err := sonnet.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("history page decode: %w", err)
		}
		for i := range page {
			h.buf.Add(eventFrom(page[i], h.s.userID))
		}

		// A short page means the feed is exhausted; no further request
		// is made even when budget remains.
		if len(page) < pageLimit {
			h.remaining = 0
			h.bounded = true
		}
	}
}
