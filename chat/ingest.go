// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"slices"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// ApplySync folds one sync response into the store. Events that do not
// decode, or that reference targets this client has never seen, are
// dropped without error: the stream is not replayable, so a fold either
// lands or it doesn't.
func (s *Store) ApplySync(response *messaging.SyncResponse, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, joined := range response.Rooms.Join {
		info := s.room(roomID)
		info.Membership = MembershipJoined
		for _, event := range joined.State.Events {
			s.applyStateEvent(info, event)
		}
		for _, event := range joined.Timeline.Events {
			s.applyTimelineEvent(info, event)
		}
		for _, event := range joined.Ephemeral.Events {
			switch event.Type {
			case messaging.EventTypeTyping:
				if content, err := messaging.DecodeContent[messaging.TypingContent](event); err == nil {
					info.Typing.set(content.UserIDs, s.user, now)
				}
			case messaging.EventTypeReceipt:
				if content, err := messaging.DecodeContent[messaging.ReceiptContent](event); err == nil {
					applyReceiptContent(info, content)
				}
			}
		}
		for _, event := range joined.AccountData.Events {
			s.applyRoomAccountData(info, event)
		}
		info.UnreadNotifications = joined.UnreadNotifications.NotificationCount
		info.UnreadHighlights = joined.UnreadNotifications.HighlightCount
	}

	for roomID, invited := range response.Rooms.Invite {
		info := s.room(roomID)
		if info.Membership == MembershipJoined {
			// A stale invite section never demotes a join.
			continue
		}
		info.Membership = MembershipInvited
		for _, event := range invited.InviteState.Events {
			s.applyStateEvent(info, event)
		}
	}

	for roomID, left := range response.Rooms.Leave {
		info := s.room(roomID)
		info.Membership = MembershipLeft
		for _, event := range left.Timeline.Events {
			s.applyTimelineEvent(info, event)
		}
	}

	for _, event := range response.Presence.Events {
		if event.Sender.IsZero() {
			continue
		}
		if content, err := messaging.DecodeContent[messaging.PresenceContent](event); err == nil {
			s.presence[event.Sender] = content
		}
	}

	for _, event := range response.AccountData.Events {
		if event.Type == messaging.EventTypeDirect {
			if content, err := messaging.DecodeContent[messaging.DirectContent](event); err == nil {
				s.applyDirects(content)
			}
		}
	}

	for _, event := range response.ToDevice.Events {
		s.applyVerificationEvent(event, now)
	}
}

// ApplyTimelineEvents folds a batch of room events, oldest or newest
// first; ordering comes from the message keys, not arrival order.
func (s *Store) ApplyTimelineEvents(roomID ref.RoomID, events []messaging.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.room(roomID)
	for _, event := range events {
		s.applyTimelineEvent(info, event)
	}
}

func (s *Store) applyTimelineEvent(info *RoomInfo, event messaging.Event) {
	switch event.Type {
	case messaging.EventTypeMessage:
		content, err := messaging.DecodeContent[messaging.MessageContent](event)
		if err != nil {
			return
		}
		if content.RelatesTo != nil && content.RelatesTo.RelType == messaging.RelTypeReplace {
			applyEdit(info, *content.RelatesTo, content.NewContent)
			return
		}
		s.insertMessage(info, event, Original{Content: content})
	case messaging.EventTypeEncrypted:
		s.insertMessage(info, event, EncryptedOriginal{})
	case messaging.EventTypeReaction:
		applyReaction(info, event)
	case messaging.EventTypeRedaction:
		applyRedaction(info, event)
	default:
		if event.StateKey != nil {
			s.applyStateEvent(info, event)
		}
	}
}

// insertMessage places a server-confirmed event into the timeline at
// (server timestamp, event ID) and removes any local echo entry for the
// same event, so each event ID maps to exactly one entry. Re-inserting
// a known event replaces it, keeping local attachment state.
func (s *Store) insertMessage(info *RoomInfo, event messaging.Event, payload MessageEvent) {
	key := MessageKey{
		Time:    ServerTime(time.UnixMilli(event.OriginServerTS)),
		EventID: event.EventID,
	}
	message := &Message{
		Event:     payload,
		Sender:    event.Sender,
		Timestamp: time.UnixMilli(event.OriginServerTS),
	}
	if existing, ok := info.Messages.Get(key); ok {
		message.Downloaded = existing.Downloaded
		message.Preview = existing.Preview
	}
	info.Messages.Insert(key, message)
	info.Messages.Remove(MessageKey{Time: LocalEchoTime(), EventID: event.EventID})
	info.locations[event.EventID] = MessageLocation(key)
	if ts := message.Timestamp; ts.After(info.LastActivity) {
		info.LastActivity = ts
	}
}

// InsertLocalEcho places a just-sent message at the end of the
// timeline under the local-echo key. If the sync echo already folded
// the confirmed event, the echo is skipped: an event ID never has two
// entries.
func (s *Store) InsertLocalEcho(roomID ref.RoomID, eventID ref.EventID, transactionID string, content messaging.MessageContent, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.room(roomID)
	if _, ok := info.locations[eventID]; ok {
		return
	}
	key := MessageKey{Time: LocalEchoTime(), EventID: eventID}
	info.Messages.Insert(key, &Message{
		Event:     Local{TransactionID: transactionID, Content: content},
		Sender:    s.user,
		Timestamp: now,
	})
	info.locations[eventID] = MessageLocation(key)
}

// ApplyEdit folds a replacement of target's content, as when this
// client's own edit was accepted. Follows the same rules as a synced
// edit: only plaintext entries change.
func (s *Store) ApplyEdit(roomID ref.RoomID, target ref.EventID, replacement messaging.MessageContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return
	}
	applyEdit(info, messaging.RelatesTo{RelType: messaging.RelTypeReplace, EventID: target}, &replacement)
}

// applyEdit mutates the target entry's content in place. Redacted and
// encrypted entries never change, and an edit whose target is unknown
// or points at a vanished entry is dropped silently.
func applyEdit(info *RoomInfo, relation messaging.RelatesTo, replacement *messaging.MessageContent) {
	if relation.EventID.IsZero() || replacement == nil {
		return
	}
	location, ok := info.locations[relation.EventID]
	if !ok {
		return
	}
	key, ok := location.MessageKey()
	if !ok {
		return
	}
	message, ok := info.Messages.Get(key)
	if !ok {
		return
	}
	switch event := message.Event.(type) {
	case Original:
		message.Event = Original{Content: *replacement}
	case Local:
		message.Event = Local{TransactionID: event.TransactionID, Content: *replacement}
	}
}

// applyReaction records an annotation in the reaction table and indexes
// the reaction's own event ID so a later redaction can find it.
func applyReaction(info *RoomInfo, event messaging.Event) {
	content, err := messaging.DecodeContent[messaging.ReactionContent](event)
	if err != nil {
		return
	}
	relation := content.RelatesTo
	if relation.RelType != messaging.RelTypeAnnotation || relation.EventID.IsZero() || relation.Key == "" {
		return
	}
	byEvent, ok := info.reactions[relation.EventID]
	if !ok {
		byEvent = make(map[ref.EventID]ReactionInfo)
		info.reactions[relation.EventID] = byEvent
	}
	byEvent[event.EventID] = ReactionInfo{Key: relation.Key, Sender: event.Sender}
	info.locations[event.EventID] = ReactionLocation(relation.EventID)
}

// applyRedaction resolves the redacted event through the location index.
// A message entry is redacted in place, keeping its key; a reaction is
// removed from the table outright. Unknown targets are a no-op.
func applyRedaction(info *RoomInfo, event messaging.Event) {
	target := messaging.RedactsTarget(event)
	if target.IsZero() {
		return
	}
	var reason string
	if content, err := messaging.DecodeContent[messaging.RedactionContent](event); err == nil {
		reason = content.Reason
	}
	location, ok := info.locations[target]
	if !ok {
		return
	}
	if key, ok := location.MessageKey(); ok {
		message, ok := info.Messages.Get(key)
		if !ok {
			return
		}
		switch message.Event.(type) {
		case Original, Local:
			message.Event = Redacted{Reason: reason}
		case EncryptedOriginal:
			message.Event = EncryptedRedacted{}
		}
		return
	}
	if annotated, ok := location.ReactionTarget(); ok {
		if byEvent, ok := info.reactions[annotated]; ok {
			delete(byEvent, target)
			if len(byEvent) == 0 {
				delete(info.reactions, annotated)
			}
		}
		delete(info.locations, target)
	}
}

func (s *Store) applyStateEvent(info *RoomInfo, event messaging.Event) {
	switch event.Type {
	case messaging.EventTypeName:
		if content, err := messaging.DecodeContent[messaging.NameContent](event); err == nil {
			info.Name = content.Name
		}
	case messaging.EventTypeTopic:
		if content, err := messaging.DecodeContent[messaging.TopicContent](event); err == nil {
			info.Topic = content.Topic
		}
	case messaging.EventTypeCanonicalAlias:
		if content, err := messaging.DecodeContent[messaging.CanonicalAliasContent](event); err == nil {
			info.Alias = content.Alias
		}
	case messaging.EventTypeCreate:
		if content, err := messaging.DecodeContent[messaging.CreateContent](event); err == nil {
			info.IsSpace = content.RoomType == messaging.RoomTypeSpace
		}
	case messaging.EventTypeMember:
		s.applyMemberEvent(info, event)
	}
}

// applyMemberEvent tracks the local user's own membership transitions
// and direct-message peers. Other members' churn is not folded; the
// member list is fetched on demand.
func (s *Store) applyMemberEvent(info *RoomInfo, event messaging.Event) {
	if event.StateKey == nil || *event.StateKey != s.user.String() {
		return
	}
	content, err := messaging.DecodeContent[messaging.MemberContent](event)
	if err != nil {
		return
	}
	switch content.Membership {
	case "join":
		info.Membership = MembershipJoined
	case "invite":
		if info.Membership != MembershipJoined {
			info.Membership = MembershipInvited
		}
		info.InvitedBy = event.Sender
		if content.IsDirect && !event.Sender.IsZero() {
			info.DirectPeer = event.Sender
		}
	case "leave", "ban":
		info.Membership = MembershipLeft
	}
}

func (s *Store) applyRoomAccountData(info *RoomInfo, event messaging.Event) {
	switch event.Type {
	case messaging.EventTypeTag:
		if content, err := messaging.DecodeContent[messaging.TagContent](event); err == nil {
			tags := content.Tags
			if tags == nil {
				tags = make(map[string]messaging.Tag)
			}
			info.Tags = tags
		}
	case messaging.EventTypeFullyRead:
		if content, err := messaging.DecodeContent[messaging.FullyReadContent](event); err == nil {
			info.FullyRead = content.EventID
		}
	}
}

// applyDirects replaces the direct-message map and stamps the peer on
// every mentioned room. Mentioned rooms enter the registry even before
// any sync section carries them.
func (s *Store) applyDirects(content messaging.DirectContent) {
	directs := make(map[ref.UserID][]ref.RoomID, len(content))
	for peer, roomIDs := range content {
		directs[peer] = slices.Clone(roomIDs)
		for _, roomID := range roomIDs {
			s.room(roomID).DirectPeer = peer
		}
	}
	s.directs = directs
}

// applyReceiptContent accumulates per-user read positions. The render
// table is not touched here; RebuildReceipts replaces it wholesale on
// the periodic refresh.
func applyReceiptContent(info *RoomInfo, content messaging.ReceiptContent) {
	for eventID, byType := range content {
		for user := range byType.Read {
			info.userReceipts[user] = eventID
		}
		for user := range byType.ReadPrivate {
			info.userReceipts[user] = eventID
		}
	}
}

// ApplyTyping replaces the room's typing set. The local user is always
// excluded: their own notices come back through sync too.
func (s *Store) ApplyTyping(roomID ref.RoomID, users []ref.UserID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomID).Typing.set(users, s.user, now)
}

// RebuildReceipts replaces the room's receipt render table from the
// accumulated per-user positions. Old rows are discarded, not merged:
// a user appears at exactly their latest position.
func (s *Store) RebuildReceipts(roomID ref.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return
	}
	receipts := make(map[ref.EventID][]ref.UserID, len(info.userReceipts))
	for user, eventID := range info.userReceipts {
		receipts[eventID] = append(receipts[eventID], user)
	}
	for _, users := range receipts {
		slices.SortFunc(users, func(a, b ref.UserID) int {
			return cmp.Compare(a.String(), b.String())
		})
	}
	info.Receipts = receipts
}

// SetDownloaded marks a message's attachment as cached, recording the
// preview handle when one was rendered.
func (s *Store) SetDownloaded(roomID ref.RoomID, eventID ref.EventID, preview *MediaPreview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return
	}
	location, ok := info.locations[eventID]
	if !ok {
		return
	}
	key, ok := location.MessageKey()
	if !ok {
		return
	}
	if message, ok := info.Messages.Get(key); ok {
		message.Downloaded = true
		if preview != nil {
			message.Preview = preview
		}
	}
}

// applyVerificationEvent folds one to-device verification signal.
// Request events create the exchange; later phases only advance a known
// transaction.
func (s *Store) applyVerificationEvent(event messaging.Event, now time.Time) {
	content, err := messaging.DecodeContent[messaging.VerificationContent](event)
	if err != nil || content.TransactionID == "" {
		return
	}
	switch event.Type {
	case messaging.EventTypeVerificationRequest:
		s.verifications[content.TransactionID] = &Verification{
			TransactionID: content.TransactionID,
			UserID:        event.Sender,
			DeviceID:      content.FromDevice,
			Phase:         VerificationRequested,
			Methods:       content.Methods,
			UpdatedAt:     now,
		}
		return
	}
	v, ok := s.verifications[content.TransactionID]
	if !ok {
		return
	}
	switch event.Type {
	case messaging.EventTypeVerificationReady:
		v.Phase = VerificationReady
	case messaging.EventTypeVerificationStart:
		v.Phase = VerificationStarted
		if content.Method != "" {
			v.Methods = []string{content.Method}
		}
	case messaging.EventTypeVerificationDone:
		v.Phase = VerificationDone
	case messaging.EventTypeVerificationCancel:
		v.Phase = VerificationCanceled
	default:
		return
	}
	v.UpdatedAt = now
}

// trackVerification records an exchange this client initiated.
func (s *Store) trackVerification(verification Verification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := verification
	s.verifications[v.TransactionID] = &v
}

// setVerificationPhase advances a transaction after this client sent a
// signal of its own.
func (s *Store) setVerificationPhase(transactionID string, phase VerificationPhase, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[transactionID]
	if !ok {
		return false
	}
	v.Phase = phase
	v.UpdatedAt = now
	return true
}
