// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// drainNeedsLoad empties the needs-load set, returning the queued rooms
// in a stable order.
func (s *Store) drainNeedsLoad() []ref.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.needLoad) == 0 {
		return nil
	}
	roomIDs := make([]ref.RoomID, 0, len(s.needLoad))
	for roomID := range s.needLoad {
		roomIDs = append(roomIDs, roomID)
	}
	clear(s.needLoad)
	slices.SortFunc(roomIDs, func(a, b ref.RoomID) int {
		return cmp.Compare(a.String(), b.String())
	})
	return roomIDs
}

// BeginFetch decides whether a queued room gets a history fetch now.
// A room already fetching or fetched within the debounce window goes
// back on the needs-load set for a later tick; an exhausted or
// non-joined room is dropped. On true, the room is marked fetching,
// the debounce stamp is taken, and the returned cursor is where to
// paginate from ("" on the first fetch, meaning the newest point).
func (s *Store) BeginFetch(roomID ref.RoomID, now time.Time, debounce time.Duration) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok || info.Membership != MembershipJoined {
		return "", false
	}
	if info.FetchStatus.State == FetchDone {
		return "", false
	}
	if info.fetching || now.Sub(info.fetchLast) < debounce {
		s.needLoad[roomID] = struct{}{}
		return "", false
	}
	info.fetching = true
	info.fetchLast = now
	return info.FetchStatus.Cursor, true
}

// CompleteFetch folds a fetched history page and advances the
// pagination status. A page without an end token means the history is
// exhausted, which is terminal. Always clears the fetching mark.
func (s *Store) CompleteFetch(roomID ref.RoomID, page messaging.RoomMessagesResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for _, event := range page.State {
		s.applyStateEvent(info, event)
	}
	for _, event := range page.Chunk {
		s.applyTimelineEvent(info, event)
	}
	if info.FetchStatus.State != FetchDone {
		if page.End != "" {
			info.FetchStatus = FetchStatus{State: FetchHaveMore, Cursor: page.End}
		} else {
			info.FetchStatus = FetchStatus{State: FetchDone}
		}
	}
	info.fetching = false
}

// FailFetch clears the fetching mark and requeues the room, leaving
// the pagination status exactly as it was. The room retries on a later
// tick at tick spacing; there is no backoff and no attempt cap.
func (s *Store) FailFetch(roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return
	}
	info.fetching = false
	s.needLoad[roomID] = struct{}{}
}

// fetchResult is what a history fetch goroutine reports back to the
// worker loop.
type fetchResult struct {
	roomID ref.RoomID
	page   messaging.RoomMessagesResponse
	err    error
}

// loadTick runs one scheduler pass: drain the queue and start at most
// one fetch per eligible room.
func (w *Worker) loadTick(ctx context.Context) {
	for _, roomID := range w.store.drainNeedsLoad() {
		cursor, ok := w.store.BeginFetch(roomID, w.clock.Now(), w.fetchDebounce)
		if !ok {
			continue
		}
		go w.fetchPage(ctx, roomID, cursor)
	}
}

// fetchPage requests one page of history, older than cursor, and hands
// the result back to the worker loop. Runs outside the store mutex.
func (w *Worker) fetchPage(ctx context.Context, roomID ref.RoomID, cursor string) {
	page, err := w.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:      cursor,
		Direction: messaging.DirectionBackward,
		Limit:     w.pageSize,
	})
	result := fetchResult{roomID: roomID, err: err}
	if err == nil {
		result.page = *page
	}
	select {
	case w.fetchResults <- result:
	case <-ctx.Done():
	}
}

// finishFetch applies a fetch goroutine's report.
func (w *Worker) finishFetch(result fetchResult) {
	if result.err != nil {
		w.logger.Warn("history fetch failed",
			"room_id", result.roomID,
			"error", result.err)
		w.store.FailFetch(result.roomID)
		return
	}
	w.store.CompleteFetch(result.roomID, result.page)
	w.logger.Debug("history page folded",
		"room_id", result.roomID,
		"events", len(result.page.Chunk),
		"has_more", result.page.End != "")
	w.notifyChange()
}
