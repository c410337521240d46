// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parley-chat/parley/lib/clock"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// Worker timing defaults.
const (
	DefaultSyncTimeout     = 30 * time.Second
	DefaultReceiptInterval = 5 * time.Second
	DefaultLoadInterval    = 2 * time.Second
	DefaultFetchDebounce   = 2 * time.Second
	DefaultTypingTimeout   = 4 * time.Second
	DefaultRetryDelay      = time.Second
	DefaultPageSize        = 50
)

// AttachmentStore is where downloaded media lands. The mxc URI is the
// cache key.
type AttachmentStore interface {
	// Path returns the local path for key when it is already cached.
	Path(key string) (string, bool)
	// Store writes content under key and returns its local path.
	Store(key string, content io.Reader) (string, error)
}

// WorkerConfig configures a Worker. Session and Store are required.
type WorkerConfig struct {
	Session  messaging.Session
	Store    *Store
	DeviceID ref.DeviceID

	// Clock defaults to the real clock.
	Clock clock.Clock
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// Media is where attachment downloads land. Downloads fail when
	// nil.
	Media AttachmentStore

	// SyncToken resumes the sync stream; "" starts an initial sync.
	SyncToken string
	Filter    messaging.SyncFilter
	// OnSync runs on the worker goroutine after each sync response
	// folds, for persisting the stream position.
	OnSync func(*messaging.SyncResponse)
	// OnChange runs on the worker goroutine after any store mutation
	// the sync reply path does not already announce: sync folds,
	// history pages, receipt refreshes. UIs hang their repaint nudge
	// here.
	OnChange func()

	SyncTimeout     time.Duration
	ReceiptInterval time.Duration
	LoadInterval    time.Duration
	FetchDebounce   time.Duration
	TypingTimeout   time.Duration
	RetryDelay      time.Duration
	PageSize        int
}

// Worker owns the network session. It is the single consumer of the
// task channel: every network operation the client performs funnels
// through here, so calls serialize without the store mutex ever being
// held across one. The first task delivered must be Init; the worker
// panics on anything else, since that is a wiring bug, not a runtime
// condition.
type Worker struct {
	session  messaging.Session
	store    *Store
	deviceID ref.DeviceID
	clock    clock.Clock
	logger   *slog.Logger
	media    AttachmentStore

	tasks         chan workerTask
	fetchResults  chan fetchResult
	syncResponses chan *messaging.SyncResponse

	syncToken string
	filter    messaging.SyncFilter
	onSync    func(*messaging.SyncResponse)
	onChange  func()

	syncTimeout     time.Duration
	receiptInterval time.Duration
	loadInterval    time.Duration
	fetchDebounce   time.Duration
	typingTimeout   time.Duration
	retryDelay      time.Duration
	pageSize        int

	initialized   bool
	loadTicker    *clock.Ticker
	receiptTicker *clock.Ticker
	loadTickC     <-chan time.Time
	receiptTickC  <-chan time.Time

	// lastTyping debounces outgoing typing notices per room. Only the
	// worker goroutine touches it.
	lastTyping map[ref.RoomID]time.Time
	echoSeq    int64
}

// NewWorker builds a Worker from config, applying defaults.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Session == nil {
		return nil, errors.New("chat: worker config needs a session")
	}
	if config.Store == nil {
		return nil, errors.New("chat: worker config needs a store")
	}
	w := &Worker{
		session:         config.Session,
		store:           config.Store,
		deviceID:        config.DeviceID,
		clock:           config.Clock,
		logger:          config.Logger,
		media:           config.Media,
		tasks:           make(chan workerTask, 16),
		fetchResults:    make(chan fetchResult, 8),
		syncResponses:   make(chan *messaging.SyncResponse, 1),
		syncToken:       config.SyncToken,
		filter:          config.Filter,
		onSync:          config.OnSync,
		onChange:        config.OnChange,
		syncTimeout:     config.SyncTimeout,
		receiptInterval: config.ReceiptInterval,
		loadInterval:    config.LoadInterval,
		fetchDebounce:   config.FetchDebounce,
		typingTimeout:   config.TypingTimeout,
		retryDelay:      config.RetryDelay,
		pageSize:        config.PageSize,
		lastTyping:      make(map[ref.RoomID]time.Time),
	}
	if w.clock == nil {
		w.clock = clock.Real()
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.syncTimeout <= 0 {
		w.syncTimeout = DefaultSyncTimeout
	}
	if w.receiptInterval <= 0 {
		w.receiptInterval = DefaultReceiptInterval
	}
	if w.loadInterval <= 0 {
		w.loadInterval = DefaultLoadInterval
	}
	if w.fetchDebounce <= 0 {
		w.fetchDebounce = DefaultFetchDebounce
	}
	if w.typingTimeout <= 0 {
		w.typingTimeout = DefaultTypingTimeout
	}
	if w.retryDelay <= 0 {
		w.retryDelay = DefaultRetryDelay
	}
	if w.pageSize <= 0 {
		w.pageSize = DefaultPageSize
	}
	return w, nil
}

// Requester returns the producer-side handle for this worker.
func (w *Worker) Requester() *Requester {
	return &Requester{tasks: w.tasks}
}

// Run processes tasks until the task channel closes or ctx is
// canceled. Closing the channel is the orderly shutdown path: the sync
// loop and any in-flight fetches are canceled on return.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer w.stopTickers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-w.tasks:
			if !ok {
				w.logger.Debug("worker shutting down")
				return nil
			}
			w.handleTask(ctx, task)
		case result := <-w.fetchResults:
			w.finishFetch(result)
		case response := <-w.syncResponses:
			w.applySyncResponse(response)
		case <-w.loadTickC:
			w.loadTick(ctx)
		case <-w.receiptTickC:
			w.refreshReceipts(ctx)
		}
	}
}

func (w *Worker) stopTickers() {
	if w.loadTicker != nil {
		w.loadTicker.Stop()
	}
	if w.receiptTicker != nil {
		w.receiptTicker.Stop()
	}
}

func (w *Worker) handleTask(ctx context.Context, task workerTask) {
	if !w.initialized {
		init, ok := task.(taskInit)
		if !ok {
			panic(fmt.Sprintf("chat: worker received %T before Init", task))
		}
		w.handleInit(ctx, init)
		return
	}
	switch task := task.(type) {
	case taskInit:
		panic("chat: worker initialized twice")
	case taskSendMessage:
		w.handleSendMessage(ctx, task)
	case taskSendReaction:
		w.handleSendReaction(ctx, task)
	case taskRedact:
		w.handleRedact(ctx, task)
	case taskJoin:
		w.handleJoin(ctx, task)
	case taskAcceptInvite:
		w.handleAcceptInvite(ctx, task)
	case taskLeave:
		w.handleLeave(ctx, task)
	case taskInvite:
		w.handleInvite(ctx, task)
	case taskMembers:
		w.handleMembers(ctx, task)
	case taskSetField:
		w.handleSetField(ctx, task)
	case taskTyping:
		w.handleTyping(ctx, task)
	case taskCreateRoom:
		w.handleCreateRoom(ctx, task)
	case taskUpload:
		w.handleUpload(ctx, task)
	case taskDownload:
		w.handleDownload(ctx, task)
	case taskVerify:
		w.handleVerify(ctx, task)
	case taskSpaceChildren:
		w.handleSpaceChildren(ctx, task)
	default:
		panic(fmt.Sprintf("chat: worker received unknown task %T", task))
	}
}

// handleInit marks the worker live, starts the periodic tasks, and
// launches the sync loop.
func (w *Worker) handleInit(ctx context.Context, task taskInit) {
	w.initialized = true
	w.loadTicker = w.clock.NewTicker(w.loadInterval)
	w.loadTickC = w.loadTicker.C
	w.receiptTicker = w.clock.NewTicker(w.receiptInterval)
	w.receiptTickC = w.receiptTicker.C
	go w.syncLoop(ctx)
	w.logger.Debug("worker initialized",
		"sync_token", w.syncToken != "",
		"load_interval", w.loadInterval,
		"receipt_interval", w.receiptInterval)
	sendReply(task.reply, struct{}{}, nil)
}

// syncLoop long-polls the event stream and hands each response to the
// worker loop. A failed poll retries at fixed spacing.
func (w *Worker) syncLoop(ctx context.Context) {
	since := w.syncToken
	filter := w.filter.Encode()
	for {
		options := messaging.SyncOptions{Since: since, Filter: filter}
		if since != "" {
			options.Timeout = int(w.syncTimeout.Milliseconds())
			options.SetTimeout = true
		}
		response, err := w.session.Sync(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("sync failed", "error", err)
			w.clock.Sleep(w.retryDelay)
			continue
		}
		select {
		case w.syncResponses <- response:
		case <-ctx.Done():
			return
		}
		since = response.NextBatch
	}
}

func (w *Worker) applySyncResponse(response *messaging.SyncResponse) {
	w.store.ApplySync(response, w.clock.Now())
	if w.onSync != nil {
		w.onSync(response)
	}
	w.notifyChange()
}

func (w *Worker) notifyChange() {
	if w.onChange != nil {
		w.onChange()
	}
}

// refreshReceipts flushes pending read positions to the server, then
// replaces each room's receipt table from the accumulated per-user
// positions. With receipt sharing off, positions stay pending and only
// the tables rebuild.
func (w *Worker) refreshReceipts(ctx context.Context) {
	share := w.store.Settings().SendReceipts
	for _, roomID := range w.store.JoinedRooms() {
		if share {
			if pending, ok := w.store.TakePendingRead(roomID); ok {
				if err := w.session.SetReadMarkers(ctx, roomID, pending, pending); err != nil {
					w.logger.Warn("read marker flush failed",
						"room_id", roomID,
						"error", err)
					w.store.RestorePendingRead(roomID, pending)
				}
			}
		}
		w.store.RebuildReceipts(roomID)
	}
	w.notifyChange()
}

func (w *Worker) handleSendMessage(ctx context.Context, task taskSendMessage) {
	eventID, err := w.session.SendMessage(ctx, task.roomID, task.content)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("send message", err))
		return
	}
	if task.editTarget.IsZero() {
		w.echoSeq++
		echoID := fmt.Sprintf("echo-%d", w.echoSeq)
		w.store.InsertLocalEcho(task.roomID, eventID, echoID, task.content, w.clock.Now())
	} else if task.content.NewContent != nil {
		// The accepted edit folds immediately; the sync echo repeats
		// the same mutation.
		w.store.ApplyEdit(task.roomID, task.editTarget, *task.content.NewContent)
	}
	sendReply(task.reply, eventID, nil)
}

func (w *Worker) handleSendReaction(ctx context.Context, task taskSendReaction) {
	content := messaging.NewReaction(task.target, task.key)
	eventID, err := w.session.SendEvent(ctx, task.roomID, messaging.EventTypeReaction, content)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("send reaction", err))
		return
	}
	sendReply(task.reply, eventID, nil)
}

func (w *Worker) handleRedact(ctx context.Context, task taskRedact) {
	eventID, err := w.session.RedactEvent(ctx, task.roomID, task.eventID, task.reason)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("redact", err))
		return
	}
	sendReply(task.reply, eventID, nil)
}

// handleJoin resolves a join target by sigil: a room ID joins
// directly, an alias resolves first, and a user ID opens (or creates)
// a direct-message room.
func (w *Worker) handleJoin(ctx context.Context, task taskJoin) {
	target := strings.TrimSpace(task.target)
	switch {
	case strings.HasPrefix(target, "!"):
		roomID, err := ref.ParseRoomID(target)
		if err != nil {
			sendReply(task.reply, ref.RoomID{}, wrapTransport("join", err))
			return
		}
		w.joinRoom(ctx, roomID, task.reply)
	case strings.HasPrefix(target, "#"):
		alias, err := ref.ParseRoomAlias(target)
		if err != nil {
			sendReply(task.reply, ref.RoomID{}, wrapTransport("join", err))
			return
		}
		roomID, err := w.session.ResolveAlias(ctx, alias)
		if err != nil {
			sendReply(task.reply, ref.RoomID{}, wrapTransport("resolve alias", err))
			return
		}
		w.joinRoom(ctx, roomID, task.reply)
	case strings.HasPrefix(target, "@"):
		peer, err := ref.ParseUserID(target)
		if err != nil {
			sendReply(task.reply, ref.RoomID{}, newError(KindInvalidUserID, "invalid user ID %q", target))
			return
		}
		w.openDirect(ctx, peer, task.reply)
	default:
		sendReply(task.reply, ref.RoomID{}, newError(KindInvalidUserID,
			"%q is not a room ID, room alias, or user ID", target))
	}
}

func (w *Worker) joinRoom(ctx context.Context, roomID ref.RoomID, reply chan taskResult[ref.RoomID]) {
	joined, err := w.session.JoinRoom(ctx, roomID)
	if err != nil {
		sendReply(reply, ref.RoomID{}, wrapTransport("join room", err))
		return
	}
	w.store.MarkJoined(joined)
	sendReply(reply, joined, nil)
}

// openDirect reuses the existing direct-message room with peer or
// creates one, recording it in the m.direct account data.
func (w *Worker) openDirect(ctx context.Context, peer ref.UserID, reply chan taskResult[ref.RoomID]) {
	if roomID, ok := w.store.DirectRoom(peer); ok {
		sendReply(reply, roomID, nil)
		return
	}
	response, err := w.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Invite:   []ref.UserID{peer},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		sendReply(reply, ref.RoomID{}, wrapTransport("create direct room", err))
		return
	}
	roomID := response.RoomID
	var directs messaging.DirectContent
	if err := w.session.GetAccountData(ctx, messaging.EventTypeDirect, &directs); err != nil {
		if !messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			w.logger.Warn("direct map read failed", "error", err)
		}
	}
	if directs == nil {
		directs = make(messaging.DirectContent)
	}
	directs[peer] = append(directs[peer], roomID)
	if err := w.session.SetAccountData(ctx, messaging.EventTypeDirect, directs); err != nil {
		w.logger.Warn("direct map update failed", "room_id", roomID, "error", err)
	}
	w.store.RecordDirect(peer, roomID)
	sendReply(reply, roomID, nil)
}

func (w *Worker) handleAcceptInvite(ctx context.Context, task taskAcceptInvite) {
	if w.store.Membership(task.roomID) != MembershipInvited {
		sendReply(task.reply, ref.RoomID{}, newError(KindNotInvited, "no invite to %s", task.roomID))
		return
	}
	w.joinRoom(ctx, task.roomID, task.reply)
}

func (w *Worker) handleLeave(ctx context.Context, task taskLeave) {
	if err := w.session.LeaveRoom(ctx, task.roomID); err != nil {
		sendReply(task.reply, struct{}{}, wrapTransport("leave room", err))
		return
	}
	w.store.MarkLeft(task.roomID)
	delete(w.lastTyping, task.roomID)
	sendReply(task.reply, struct{}{}, nil)
}

func (w *Worker) handleInvite(ctx context.Context, task taskInvite) {
	if err := w.session.InviteUser(ctx, task.roomID, task.userID); err != nil {
		sendReply(task.reply, struct{}{}, wrapTransport("invite", err))
		return
	}
	sendReply(task.reply, struct{}{}, nil)
}

func (w *Worker) handleMembers(ctx context.Context, task taskMembers) {
	members, err := w.session.GetRoomMembers(ctx, task.roomID)
	if err != nil {
		sendReply(task.reply, nil, wrapTransport("room members", err))
		return
	}
	sendReply(task.reply, members, nil)
}

func (w *Worker) handleSetField(ctx context.Context, task taskSetField) {
	var err error
	switch field := task.field.(type) {
	case FieldName:
		if task.unset {
			field.Name = ""
		}
		_, err = w.session.SendStateEvent(ctx, task.roomID, messaging.EventTypeName, "", messaging.NameContent{Name: field.Name})
	case FieldTopic:
		if task.unset {
			field.Topic = ""
		}
		_, err = w.session.SendStateEvent(ctx, task.roomID, messaging.EventTypeTopic, "", messaging.TopicContent{Topic: field.Topic})
	case FieldTag:
		if task.unset {
			err = w.session.DeleteRoomTag(ctx, task.roomID, field.Tag)
		} else {
			err = w.session.SetRoomTag(ctx, task.roomID, field.Tag, field.Order)
		}
	default:
		panic(fmt.Sprintf("chat: unknown room field %T", task.field))
	}
	if err != nil {
		sendReply(task.reply, struct{}{}, wrapTransport("set room field", err))
		return
	}
	sendReply(task.reply, struct{}{}, nil)
}

// handleTyping forwards a typing notice, suppressing resends while the
// previous notice is still live on the server. Stop notices always go
// out. Failures are logged and dropped; typing is best effort.
func (w *Worker) handleTyping(ctx context.Context, task taskTyping) {
	now := w.clock.Now()
	if task.typing {
		if last, ok := w.lastTyping[task.roomID]; ok && now.Sub(last) < w.typingTimeout-time.Second {
			return
		}
		w.lastTyping[task.roomID] = now
	} else {
		delete(w.lastTyping, task.roomID)
	}
	if err := w.session.SendTyping(ctx, task.roomID, task.typing, w.typingTimeout); err != nil {
		w.logger.Warn("typing notice failed", "room_id", task.roomID, "error", err)
	}
}

func (w *Worker) handleCreateRoom(ctx context.Context, task taskCreateRoom) {
	response, err := w.session.CreateRoom(ctx, task.request)
	if err != nil {
		sendReply(task.reply, ref.RoomID{}, wrapTransport("create room", err))
		return
	}
	w.store.MarkJoined(response.RoomID)
	sendReply(task.reply, response.RoomID, nil)
}

// handleUpload reads a local file, uploads it to the media repository,
// and sends the message that references it.
func (w *Worker) handleUpload(ctx context.Context, task taskUpload) {
	file, err := os.Open(task.path)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("open upload", err))
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("stat upload", err))
		return
	}
	name := filepath.Base(task.path)
	contentType := mime.TypeByExtension(filepath.Ext(task.path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uri, err := w.session.UploadMedia(ctx, contentType, name, file)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("upload media", err))
		return
	}
	content := messaging.MessageContent{
		MsgType: msgTypeForMIME(contentType),
		Body:    name,
		URL:     uri,
		Info: &messaging.FileInfo{
			MimeType: contentType,
			Size:     info.Size(),
		},
	}
	eventID, err := w.session.SendMessage(ctx, task.roomID, content)
	if err != nil {
		sendReply(task.reply, ref.EventID{}, wrapTransport("send upload", err))
		return
	}
	w.echoSeq++
	w.store.InsertLocalEcho(task.roomID, eventID, fmt.Sprintf("echo-%d", w.echoSeq), content, w.clock.Now())
	sendReply(task.reply, eventID, nil)
}

func msgTypeForMIME(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return messaging.MsgTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return messaging.MsgTypeAudio
	case strings.HasPrefix(contentType, "video/"):
		return messaging.MsgTypeVideo
	default:
		return messaging.MsgTypeFile
	}
}

// handleDownload fetches a message's attachment into the media cache,
// or reports the cached copy. The cache key is the mxc URI.
func (w *Worker) handleDownload(ctx context.Context, task taskDownload) {
	var url string
	found := w.store.WithRoom(task.roomID, func(info *RoomInfo) {
		location, ok := info.locations[task.eventID]
		if !ok {
			return
		}
		key, ok := location.MessageKey()
		if !ok {
			return
		}
		if message, ok := info.Messages.Get(key); ok {
			url = message.AttachmentURL()
		}
	})
	if !found {
		sendReply(task.reply, "", newError(KindUnknownRoom, "unknown room %s", task.roomID))
		return
	}
	if url == "" {
		sendReply(task.reply, "", newError(KindNoAttachment, "message %s has no attachment", task.eventID))
		return
	}
	if w.media == nil {
		sendReply(task.reply, "", newError(KindTransport, "no media cache configured"))
		return
	}
	if path, ok := w.media.Path(url); ok && !task.force {
		w.store.SetDownloaded(task.roomID, task.eventID, nil)
		sendReply(task.reply, path, nil)
		return
	}
	body, _, err := w.session.DownloadMedia(ctx, url)
	if err != nil {
		sendReply(task.reply, "", wrapTransport("download media", err))
		return
	}
	defer body.Close()
	path, err := w.media.Store(url, body)
	if err != nil {
		sendReply(task.reply, "", wrapTransport("cache media", err))
		return
	}
	w.store.SetDownloaded(task.roomID, task.eventID, nil)
	sendReply(task.reply, path, nil)
}

// handleVerify performs one verification signaling step. The SAS
// computation itself lives outside this client; the worker only routes
// the to-device events and tracks phases.
func (w *Worker) handleVerify(ctx context.Context, task taskVerify) {
	now := w.clock.Now()
	switch action := task.action.(type) {
	case VerifyRequest:
		w.echoSeq++
		transactionID := fmt.Sprintf("parley-verify-%d-%d", now.UnixMilli(), w.echoSeq)
		content := messaging.VerificationContent{
			FromDevice:    w.deviceID,
			TransactionID: transactionID,
			Methods:       []string{messaging.VerificationMethodSAS},
			Timestamp:     now.UnixMilli(),
		}
		messages := messaging.ToDeviceMessages{
			action.UserID: {messaging.AllDevices: content},
		}
		if err := w.session.SendToDevice(ctx, messaging.EventTypeVerificationRequest, messages); err != nil {
			sendReply(task.reply, struct{}{}, wrapTransport("verification request", err))
			return
		}
		w.store.trackVerification(Verification{
			TransactionID: transactionID,
			UserID:        action.UserID,
			Phase:         VerificationRequested,
			Methods:       []string{messaging.VerificationMethodSAS},
			UpdatedAt:     now,
		})
		sendReply(task.reply, struct{}{}, nil)
	case VerifyAccept:
		w.signalVerification(ctx, task, action.TransactionID, messaging.EventTypeVerificationReady, VerificationReady)
	case VerifyConfirm:
		w.signalVerification(ctx, task, action.TransactionID, messaging.EventTypeVerificationDone, VerificationDone)
	case VerifyCancel:
		w.signalVerification(ctx, task, action.TransactionID, messaging.EventTypeVerificationCancel, VerificationCanceled)
	default:
		panic(fmt.Sprintf("chat: unknown verify action %T", task.action))
	}
}

func (w *Worker) signalVerification(ctx context.Context, task taskVerify, transactionID string, eventType ref.EventType, phase VerificationPhase) {
	verification, ok := w.store.Verification(transactionID)
	if !ok {
		sendReply(task.reply, struct{}{}, newError(KindInvalidVerificationID, "unknown verification %q", transactionID))
		return
	}
	content := messaging.VerificationContent{
		FromDevice:    w.deviceID,
		TransactionID: transactionID,
	}
	if eventType == messaging.EventTypeVerificationReady {
		content.Methods = []string{messaging.VerificationMethodSAS}
	}
	if eventType == messaging.EventTypeVerificationCancel {
		content.Code = "m.user"
		content.Reason = "canceled by user"
	}
	// Exchanges this client initiated were broadcast, so the peer
	// device is unknown until a ready arrives.
	device := verification.DeviceID
	if device.IsZero() {
		device = messaging.AllDevices
	}
	messages := messaging.ToDeviceMessages{
		verification.UserID: {device: content},
	}
	if err := w.session.SendToDevice(ctx, eventType, messages); err != nil {
		sendReply(task.reply, struct{}{}, wrapTransport("verification signal", err))
		return
	}
	w.store.setVerificationPhase(transactionID, phase, w.clock.Now())
	sendReply(task.reply, struct{}{}, nil)
}

func (w *Worker) handleSpaceChildren(ctx context.Context, task taskSpaceChildren) {
	response, err := w.session.RoomHierarchy(ctx, task.roomID, "", w.pageSize)
	if err != nil {
		sendReply(task.reply, nil, wrapTransport("space hierarchy", err))
		return
	}
	sendReply(task.reply, response.Rooms, nil)
}
