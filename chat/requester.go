// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// workerTask is the closed set of requests the worker consumes.
type workerTask interface {
	workerTask()
}

// taskResult pairs a task's value with its error for the one-shot
// reply channel. Reply channels are created with capacity one, so the
// worker's send never blocks.
type taskResult[T any] struct {
	value T
	err   error
}

// sendReply delivers a task's outcome. A nil reply channel is a
// construction bug in the requester, not a runtime condition.
func sendReply[T any](reply chan taskResult[T], value T, err error) {
	if reply == nil {
		panic("chat: task has no reply channel")
	}
	reply <- taskResult[T]{value: value, err: err}
}

type taskInit struct {
	reply chan taskResult[struct{}]
}

type taskSendMessage struct {
	roomID  ref.RoomID
	content messaging.MessageContent
	// editTarget marks the send as an edit of that event: no local
	// echo, fold the replacement instead.
	editTarget ref.EventID
	reply      chan taskResult[ref.EventID]
}

type taskSendReaction struct {
	roomID ref.RoomID
	target ref.EventID
	key    string
	reply  chan taskResult[ref.EventID]
}

type taskRedact struct {
	roomID  ref.RoomID
	eventID ref.EventID
	reason  string
	reply   chan taskResult[ref.EventID]
}

type taskJoin struct {
	target string
	reply  chan taskResult[ref.RoomID]
}

type taskAcceptInvite struct {
	roomID ref.RoomID
	reply  chan taskResult[ref.RoomID]
}

type taskLeave struct {
	roomID ref.RoomID
	reply  chan taskResult[struct{}]
}

type taskInvite struct {
	roomID ref.RoomID
	userID ref.UserID
	reply  chan taskResult[struct{}]
}

type taskMembers struct {
	roomID ref.RoomID
	reply  chan taskResult[[]messaging.RoomMember]
}

type taskSetField struct {
	roomID ref.RoomID
	field  RoomField
	unset  bool
	reply  chan taskResult[struct{}]
}

type taskTyping struct {
	roomID ref.RoomID
	typing bool
}

type taskCreateRoom struct {
	request messaging.CreateRoomRequest
	reply   chan taskResult[ref.RoomID]
}

type taskUpload struct {
	roomID ref.RoomID
	path   string
	reply  chan taskResult[ref.EventID]
}

type taskDownload struct {
	roomID  ref.RoomID
	eventID ref.EventID
	force   bool
	reply   chan taskResult[string]
}

type taskVerify struct {
	action VerifyAction
	reply  chan taskResult[struct{}]
}

type taskSpaceChildren struct {
	roomID ref.RoomID
	reply  chan taskResult[[]messaging.HierarchyRoom]
}

func (taskInit) workerTask()          {}
func (taskSendMessage) workerTask()   {}
func (taskSendReaction) workerTask()  {}
func (taskRedact) workerTask()        {}
func (taskJoin) workerTask()          {}
func (taskAcceptInvite) workerTask()  {}
func (taskLeave) workerTask()         {}
func (taskInvite) workerTask()        {}
func (taskMembers) workerTask()       {}
func (taskSetField) workerTask()      {}
func (taskTyping) workerTask()        {}
func (taskCreateRoom) workerTask()    {}
func (taskUpload) workerTask()        {}
func (taskDownload) workerTask()      {}
func (taskVerify) workerTask()        {}
func (taskSpaceChildren) workerTask() {}

// Requester is the producer-side handle to the worker: any goroutine
// may call it, and each call blocks until the worker replies or ctx is
// done. Init must be the first call made on a fresh worker.
type Requester struct {
	tasks chan<- workerTask
}

// submit queues a task, honoring ctx while the queue is full.
func (r *Requester) submit(ctx context.Context, task workerTask) error {
	select {
	case r.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await collects a task's reply, honoring ctx. On cancellation the
// worker's eventual reply lands in the buffered channel and is
// garbage collected with it.
func await[T any](ctx context.Context, reply chan taskResult[T]) (T, error) {
	select {
	case result := <-reply:
		return result.value, result.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func request[T any](ctx context.Context, r *Requester, reply chan taskResult[T], task workerTask) (T, error) {
	if err := r.submit(ctx, task); err != nil {
		var zero T
		return zero, err
	}
	return await(ctx, reply)
}

// Init starts the worker's sync loop and periodic tasks.
func (r *Requester) Init(ctx context.Context) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskInit{reply: reply})
	return err
}

// SendMessage sends a message and inserts its local echo.
func (r *Requester) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	reply := make(chan taskResult[ref.EventID], 1)
	return request(ctx, r, reply, taskSendMessage{roomID: roomID, content: content, reply: reply})
}

// SendEdit sends a replacement for target and folds it in place on
// success.
func (r *Requester) SendEdit(ctx context.Context, roomID ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error) {
	reply := make(chan taskResult[ref.EventID], 1)
	return request(ctx, r, reply, taskSendMessage{roomID: roomID, content: content, editTarget: target, reply: reply})
}

// SendReaction annotates target with key.
func (r *Requester) SendReaction(ctx context.Context, roomID ref.RoomID, target ref.EventID, key string) (ref.EventID, error) {
	reply := make(chan taskResult[ref.EventID], 1)
	return request(ctx, r, reply, taskSendReaction{roomID: roomID, target: target, key: key, reply: reply})
}

// Redact removes an event, returning the redaction's own event ID.
func (r *Requester) Redact(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) (ref.EventID, error) {
	reply := make(chan taskResult[ref.EventID], 1)
	return request(ctx, r, reply, taskRedact{roomID: roomID, eventID: eventID, reason: reason, reply: reply})
}

// Join joins a room by ID or alias, or opens a direct-message room
// when target is a user ID.
func (r *Requester) Join(ctx context.Context, target string) (ref.RoomID, error) {
	reply := make(chan taskResult[ref.RoomID], 1)
	return request(ctx, r, reply, taskJoin{target: target, reply: reply})
}

// AcceptInvite joins a room this user holds an invite to.
func (r *Requester) AcceptInvite(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	reply := make(chan taskResult[ref.RoomID], 1)
	return request(ctx, r, reply, taskAcceptInvite{roomID: roomID, reply: reply})
}

// Leave leaves a room. The room stays listed with left membership.
func (r *Requester) Leave(ctx context.Context, roomID ref.RoomID) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskLeave{roomID: roomID, reply: reply})
	return err
}

// Invite invites a user to a room.
func (r *Requester) Invite(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskInvite{roomID: roomID, userID: userID, reply: reply})
	return err
}

// Members fetches a room's current member list.
func (r *Requester) Members(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error) {
	reply := make(chan taskResult[[]messaging.RoomMember], 1)
	return request(ctx, r, reply, taskMembers{roomID: roomID, reply: reply})
}

// SetRoomField sets a room's name, topic, or tag.
func (r *Requester) SetRoomField(ctx context.Context, roomID ref.RoomID, field RoomField) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskSetField{roomID: roomID, field: field, reply: reply})
	return err
}

// UnsetRoomField clears a room's name, topic, or tag.
func (r *Requester) UnsetRoomField(ctx context.Context, roomID ref.RoomID, field RoomField) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskSetField{roomID: roomID, field: field, unset: true, reply: reply})
	return err
}

// Typing queues a typing notice. Fire and forget: failures are logged
// by the worker, and resends inside the server-side window are
// suppressed.
func (r *Requester) Typing(ctx context.Context, roomID ref.RoomID, typing bool) error {
	return r.submit(ctx, taskTyping{roomID: roomID, typing: typing})
}

// CreateRoom creates a room and returns its ID.
func (r *Requester) CreateRoom(ctx context.Context, req messaging.CreateRoomRequest) (ref.RoomID, error) {
	reply := make(chan taskResult[ref.RoomID], 1)
	return request(ctx, r, reply, taskCreateRoom{request: req, reply: reply})
}

// Upload sends a local file to a room as a media message.
func (r *Requester) Upload(ctx context.Context, roomID ref.RoomID, path string) (ref.EventID, error) {
	reply := make(chan taskResult[ref.EventID], 1)
	return request(ctx, r, reply, taskUpload{roomID: roomID, path: path, reply: reply})
}

// Download fetches a message's attachment into the media cache and
// returns its local path. force bypasses the cached copy.
func (r *Requester) Download(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, force bool) (string, error) {
	reply := make(chan taskResult[string], 1)
	return request(ctx, r, reply, taskDownload{roomID: roomID, eventID: eventID, force: force, reply: reply})
}

// Verify performs one verification signaling step.
func (r *Requester) Verify(ctx context.Context, action VerifyAction) error {
	reply := make(chan taskResult[struct{}], 1)
	_, err := request(ctx, r, reply, taskVerify{action: action, reply: reply})
	return err
}

// SpaceChildren lists the rooms beneath a space.
func (r *Requester) SpaceChildren(ctx context.Context, roomID ref.RoomID) ([]messaging.HierarchyRoom, error) {
	reply := make(chan taskResult[[]messaging.HierarchyRoom], 1)
	return request(ctx, r, reply, taskSpaceChildren{roomID: roomID, reply: reply})
}

// Close shuts the worker down once queued tasks drain. No Requester
// method may be called after Close.
func (r *Requester) Close() {
	close(r.tasks)
}
