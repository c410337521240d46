// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// FetchState is where a room's backward pagination stands.
type FetchState int

const (
	// FetchNotStarted: no history page has been requested yet. The
	// first fetch paginates from the room's newest known point.
	FetchNotStarted FetchState = iota
	// FetchHaveMore: at least one page landed and the server returned
	// a cursor for the next one.
	FetchHaveMore
	// FetchDone: the server reported the history exhausted. Terminal.
	FetchDone
)

func (s FetchState) String() string {
	switch s {
	case FetchNotStarted:
		return "not started"
	case FetchHaveMore:
		return "have more"
	case FetchDone:
		return "done"
	default:
		return "unknown"
	}
}

// FetchStatus is the pagination state machine for one room. Cursor is
// set only in FetchHaveMore. A failed fetch leaves the status as it
// was; FetchDone is never left once entered.
type FetchStatus struct {
	State  FetchState
	Cursor string
}

// Membership is the local user's relationship to a room.
type Membership int

const (
	// MembershipUnknown: the room is known only by reference, for
	// example from an account-data mention.
	MembershipUnknown Membership = iota
	MembershipJoined
	MembershipInvited
	MembershipLeft
)

func (m Membership) String() string {
	switch m {
	case MembershipJoined:
		return "joined"
	case MembershipInvited:
		return "invited"
	case MembershipLeft:
		return "left"
	default:
		return "unknown"
	}
}

// EventLocation records where a known event ID landed: either a
// timeline entry, addressed by its message key, or a reaction,
// addressed by the event it annotates. Edits and redactions resolve
// their targets through this index.
type EventLocation struct {
	kind   locationKind
	key    MessageKey
	target ref.EventID
}

type locationKind uint8

const (
	locationMessage locationKind = iota
	locationReaction
)

// MessageLocation returns the location of a timeline entry.
func MessageLocation(key MessageKey) EventLocation {
	return EventLocation{kind: locationMessage, key: key}
}

// ReactionLocation returns the location of a reaction annotating
// target.
func ReactionLocation(target ref.EventID) EventLocation {
	return EventLocation{kind: locationReaction, target: target}
}

// MessageKey returns the timeline key for a message location.
func (l EventLocation) MessageKey() (MessageKey, bool) {
	if l.kind != locationMessage {
		return MessageKey{}, false
	}
	return l.key, true
}

// ReactionTarget returns the annotated event for a reaction location.
func (l EventLocation) ReactionTarget() (ref.EventID, bool) {
	if l.kind != locationReaction {
		return ref.EventID{}, false
	}
	return l.target, true
}

// ReactionInfo is one reaction on a message, keyed in the reaction
// table by the reaction event's own ID.
type ReactionInfo struct {
	Key    string
	Sender ref.UserID
}

// ReactionCount is the aggregated render form of one reaction key.
type ReactionCount struct {
	Key   string
	Count int
	// Mine reports whether the local user is among the senders.
	Mine bool
}

// VerificationPhase tracks an interactive verification exchange.
type VerificationPhase int

const (
	VerificationRequested VerificationPhase = iota
	VerificationReady
	VerificationStarted
	VerificationDone
	VerificationCanceled
)

func (p VerificationPhase) String() string {
	switch p {
	case VerificationRequested:
		return "requested"
	case VerificationReady:
		return "ready"
	case VerificationStarted:
		return "started"
	case VerificationDone:
		return "done"
	case VerificationCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Verification is one in-flight device verification, keyed by its
// transaction ID.
type Verification struct {
	TransactionID string
	UserID        ref.UserID
	DeviceID      ref.DeviceID
	Phase         VerificationPhase
	Methods       []string
	UpdatedAt     time.Time
}

// RoomInfo is everything the client knows about one room. Access is
// guarded by the owning Store's mutex: mutate only inside ingestion or
// scheduler methods, read only inside WithRoom callbacks.
type RoomInfo struct {
	RoomID ref.RoomID

	// Messages is the ordered timeline.
	Messages *MessageLog

	// locations maps every known event ID to where it folded.
	locations map[ref.EventID]EventLocation

	// reactions maps an annotated event to its reactions, keyed by
	// the reaction event's own ID so refetched pages do not double
	// count.
	reactions map[ref.EventID]map[ref.EventID]ReactionInfo

	// Receipts maps an event to the users whose read position is that
	// event. Replaced wholesale on each receipt refresh, never merged.
	Receipts map[ref.EventID][]ref.UserID

	// userReceipts is the per-user read position accumulated from
	// sync, the source Receipts is rebuilt from.
	userReceipts map[ref.UserID]ref.EventID

	// pendingRead is a locally requested "mark read up to" position
	// not yet flushed to the server.
	pendingRead ref.EventID

	FetchStatus FetchStatus

	// fetching guards against concurrent pagination for this room.
	fetching  bool
	fetchLast time.Time

	Membership Membership
	InvitedBy  ref.UserID

	Name  string
	Topic string
	Alias string
	Tags  map[string]messaging.Tag

	// DirectPeer is set for direct-message rooms.
	DirectPeer ref.UserID
	IsSpace    bool

	Typing TypingState

	FullyRead           ref.EventID
	UnreadNotifications int
	UnreadHighlights    int

	// LastActivity is the newest origin timestamp folded in, used to
	// order the room list.
	LastActivity time.Time
}

func newRoomInfo(roomID ref.RoomID) *RoomInfo {
	return &RoomInfo{
		RoomID:       roomID,
		Messages:     NewMessageLog(),
		locations:    make(map[ref.EventID]EventLocation),
		reactions:    make(map[ref.EventID]map[ref.EventID]ReactionInfo),
		Receipts:     make(map[ref.EventID][]ref.UserID),
		userReceipts: make(map[ref.UserID]ref.EventID),
		Tags:         make(map[string]messaging.Tag),
	}
}

// IsDirect reports whether the room is a direct-message room.
func (r *RoomInfo) IsDirect() bool {
	return !r.DirectPeer.IsZero()
}

// DisplayName returns the best available human name for the room.
func (r *RoomInfo) DisplayName() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Alias != "":
		return r.Alias
	case r.IsDirect():
		return r.DirectPeer.String()
	default:
		return r.RoomID.String()
	}
}

// Location returns where eventID folded, if it is known at all.
func (r *RoomInfo) Location(eventID ref.EventID) (EventLocation, bool) {
	location, ok := r.locations[eventID]
	return location, ok
}

// ReactionSummary aggregates the reactions on target for rendering,
// sorted by key.
func (r *RoomInfo) ReactionSummary(target ref.EventID, me ref.UserID) []ReactionCount {
	byKey := make(map[string]*ReactionCount)
	for _, info := range r.reactions[target] {
		count, ok := byKey[info.Key]
		if !ok {
			count = &ReactionCount{Key: info.Key}
			byKey[info.Key] = count
		}
		count.Count++
		if info.Sender == me {
			count.Mine = true
		}
	}
	counts := make([]ReactionCount, 0, len(byKey))
	for _, count := range byKey {
		counts = append(counts, *count)
	}
	slices.SortFunc(counts, func(a, b ReactionCount) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return counts
}

// OwnReactions returns the IDs of sender's reaction events on target.
// A non-empty key restricts the result to that reaction key.
func (r *RoomInfo) OwnReactions(target ref.EventID, sender ref.UserID, key string) []ref.EventID {
	var ids []ref.EventID
	for eventID, info := range r.reactions[target] {
		if info.Sender != sender {
			continue
		}
		if key != "" && info.Key != key {
			continue
		}
		ids = append(ids, eventID)
	}
	slices.SortFunc(ids, func(a, b ref.EventID) int {
		return cmp.Compare(a.String(), b.String())
	})
	return ids
}

// RoomSummary is the room-list projection of a RoomInfo.
type RoomSummary struct {
	RoomID       ref.RoomID
	Name         string
	Membership   Membership
	IsDirect     bool
	IsSpace      bool
	Unread       int
	Highlights   int
	Tags         []string
	LastActivity time.Time
}

// Settings are the sharing preferences the client honors at runtime.
type Settings struct {
	// SendTyping shares typing notices with the room.
	SendTyping bool
	// SendReceipts shares read positions with the room.
	SendReceipts bool
}

// DefaultSettings shares both typing notices and read receipts.
func DefaultSettings() Settings {
	return Settings{SendTyping: true, SendReceipts: true}
}

// Store is the client's in-memory state: the room registry, presence
// table, verification table, and settings, all behind one mutex. Rooms
// are created on first reference and never removed; leaving a room
// only flips its membership.
//
// The mutex is never held across a network call or a channel
// operation. Callbacks passed to With methods run under the mutex and
// must not block or retain what they were given.
type Store struct {
	user ref.UserID

	mu            sync.Mutex
	rooms         map[ref.RoomID]*RoomInfo
	needLoad      map[ref.RoomID]struct{}
	presence      map[ref.UserID]messaging.PresenceContent
	directs       map[ref.UserID][]ref.RoomID
	verifications map[string]*Verification
	settings      Settings
}

// NewStore returns an empty store for the given local user.
func NewStore(user ref.UserID) *Store {
	return &Store{
		user:          user,
		rooms:         make(map[ref.RoomID]*RoomInfo),
		needLoad:      make(map[ref.RoomID]struct{}),
		presence:      make(map[ref.UserID]messaging.PresenceContent),
		directs:       make(map[ref.UserID][]ref.RoomID),
		verifications: make(map[string]*Verification),
		settings:      DefaultSettings(),
	}
}

// UserID returns the local user.
func (s *Store) UserID() ref.UserID {
	return s.user
}

// Settings returns the current sharing preferences.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the sharing preferences.
func (s *Store) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// CheckJoined returns nil when the local user is joined to roomID, or
// the matching taxonomy error.
func (s *Store) CheckJoined(roomID ref.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.requireJoined(roomID)
	return err
}

// room returns the registry entry for roomID, creating it on first
// reference. Callers hold s.mu.
func (s *Store) room(roomID ref.RoomID) *RoomInfo {
	info, ok := s.rooms[roomID]
	if !ok {
		info = newRoomInfo(roomID)
		s.rooms[roomID] = info
	}
	return info
}

// WithRoom runs fn on the room's info under the store mutex. It
// reports false, without running fn, when the room was never seen.
func (s *Store) WithRoom(roomID ref.RoomID, fn func(*RoomInfo)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	fn(info)
	return true
}

// Membership returns the local user's membership in roomID.
func (s *Store) Membership(roomID ref.RoomID) Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return MembershipUnknown
	}
	return info.Membership
}

// requireJoined returns the room when the local user is joined to it,
// or the matching taxonomy error.
func (s *Store) requireJoined(roomID ref.RoomID) (*RoomInfo, error) {
	info, ok := s.rooms[roomID]
	if !ok {
		return nil, newError(KindUnknownRoom, "unknown room %s", roomID)
	}
	if info.Membership != MembershipJoined {
		return nil, newError(KindNotJoined, "not joined to %s", roomID)
	}
	return info, nil
}

// Rooms returns summaries of every room worth listing, newest activity
// first, ties by display name. Rooms known only by reference are
// omitted.
func (s *Store) Rooms() []RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]RoomSummary, 0, len(s.rooms))
	for _, info := range s.rooms {
		if info.Membership == MembershipUnknown {
			continue
		}
		tags := make([]string, 0, len(info.Tags))
		for tag := range info.Tags {
			tags = append(tags, tag)
		}
		slices.Sort(tags)
		summaries = append(summaries, RoomSummary{
			RoomID:       info.RoomID,
			Name:         info.DisplayName(),
			Membership:   info.Membership,
			IsDirect:     info.IsDirect(),
			IsSpace:      info.IsSpace,
			Unread:       info.UnreadNotifications,
			Highlights:   info.UnreadHighlights,
			Tags:         tags,
			LastActivity: info.LastActivity,
		})
	}
	slices.SortFunc(summaries, func(a, b RoomSummary) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return summaries
}

// DirectRoom returns the known direct-message room with peer, if one
// exists and is still joined.
func (s *Store) DirectRoom(peer ref.UserID) (ref.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, roomID := range s.directs[peer] {
		if info, ok := s.rooms[roomID]; ok && info.Membership == MembershipJoined {
			return roomID, true
		}
	}
	return ref.RoomID{}, false
}

// Presence returns the last known presence of user.
func (s *Store) Presence(user ref.UserID) (messaging.PresenceContent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.presence[user]
	return content, ok
}

// MarkNeedsLoad queues roomID for a history fetch on the next
// scheduler tick. Called when a room is opened or its scrollback hits
// the oldest loaded message.
func (s *Store) MarkNeedsLoad(roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needLoad[roomID] = struct{}{}
}

// MarkReadTo records a local "read up to eventID" position to be
// flushed on the next receipt refresh.
func (s *Store) MarkReadTo(roomID ref.RoomID, eventID ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).pendingRead = eventID
}

// TakePendingRead removes and returns the unflushed read position for
// roomID.
func (s *Store) TakePendingRead(roomID ref.RoomID) (ref.EventID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok || info.pendingRead.IsZero() {
		return ref.EventID{}, false
	}
	pending := info.pendingRead
	info.pendingRead = ref.EventID{}
	return pending, true
}

// RestorePendingRead puts a taken read position back after a failed
// flush, unless a newer one was marked in the meantime.
func (s *Store) RestorePendingRead(roomID ref.RoomID, eventID ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok || !info.pendingRead.IsZero() {
		return
	}
	info.pendingRead = eventID
}

// MarkJoined records a join confirmed outside the sync stream, as when
// a join or room creation call returns.
func (s *Store) MarkJoined(roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).Membership = MembershipJoined
}

// MarkLeft records a leave confirmed outside the sync stream. The room
// stays in the registry.
func (s *Store) MarkLeft(roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).Membership = MembershipLeft
}

// RecordDirect records a freshly created direct-message room before
// the sync stream catches up.
func (s *Store) RecordDirect(peer ref.UserID, roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directs[peer] = append(s.directs[peer], roomID)
	info := s.room(roomID)
	info.DirectPeer = peer
	info.Membership = MembershipJoined
}

// JoinedRooms returns the IDs of all joined rooms, sorted.
func (s *Store) JoinedRooms() []ref.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []ref.RoomID
	for roomID, info := range s.rooms {
		if info.Membership == MembershipJoined {
			ids = append(ids, roomID)
		}
	}
	slices.SortFunc(ids, func(a, b ref.RoomID) int {
		return cmp.Compare(a.String(), b.String())
	})
	return ids
}

// Verifications returns the in-flight verifications, newest first.
func (s *Store) Verifications() []Verification {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Verification, 0, len(s.verifications))
	for _, v := range s.verifications {
		list = append(list, *v)
	}
	slices.SortFunc(list, func(a, b Verification) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TransactionID, b.TransactionID)
	})
	return list
}

// Verification returns the verification for transactionID.
func (s *Store) Verification(transactionID string) (Verification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[transactionID]
	if !ok {
		return Verification{}, false
	}
	return *v, true
}
