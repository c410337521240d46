// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/chatcmd"
	"github.com/parley-chat/parley/lib/config"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

const (
	// noticeFadeDelay is how long a status-bar notice lingers.
	noticeFadeDelay = 5 * time.Second

	// typingResendInterval spaces repeated typing signals while keys
	// keep coming. The worker dedups more aggressively underneath.
	typingResendInterval = time.Second

	// typingTickInterval drives the typing-row refresh and the
	// stopped-typing check while either is live.
	typingTickInterval = time.Second

	// composerIdleAfter is how long after the last keystroke the
	// client tells the room it stopped typing.
	composerIdleAfter = 4 * time.Second
)

// FocusRegion is the pane that owns key events.
type FocusRegion int

const (
	FocusRooms FocusRegion = iota
	FocusTimeline
	FocusComposer
)

// syncEventMsg wakes the update loop after a worker change pulse.
type syncEventMsg struct{}

// noticeFadeMsg clears the notice it was armed for. seq keeps a stale
// fade from wiping a newer notice.
type noticeFadeMsg struct {
	seq int
}

// typingTickMsg drives outgoing idle detection and the typing row.
type typingTickMsg struct{}

// commandDoneMsg reports a network command that held its room's
// pending slot. restore carries the draft to put back on failure.
type commandDoneMsg struct {
	roomID        ref.RoomID
	info          string
	err           error
	restore       string
	restoreBanner string
}

// asyncDoneMsg reports a room-independent network command. A non-zero
// focusRoom moves the room selection there on success.
type asyncDoneMsg struct {
	info      string
	err       error
	focusRoom ref.RoomID
}

// membersMsg carries a fetched member list for the members window.
type membersMsg struct {
	name    string
	members []messaging.RoomMember
	err     error
}

// spaceMsg carries a space's children for the space window.
type spaceMsg struct {
	name     string
	children []messaging.HierarchyRoom
	err      error
}

// Config wires the model into the rest of the client.
type Config struct {
	// Store is the room registry the worker folds sync into.
	Store *chat.Store

	// Requester submits work to the network worker.
	Requester *chat.Requester

	// Commands resolves ":" command lines.
	Commands *chatcmd.Registry

	// Keys are the resolved bindings. The zero value means
	// DefaultKeyMap.
	Keys KeyMap

	// Settings are the resolved sharing and display preferences.
	Settings config.SettingsConfig

	// UI is the look-and-feel block from the config file.
	UI config.UIConfig

	// Events pulses after the worker changes the store. Senders must
	// never block on it; the model drains one pulse per repaint.
	Events <-chan struct{}

	// OpenFile launches the system opener on a downloaded file. Nil
	// disables ":open".
	OpenFile func(path string) error

	// Version is shown on the welcome screen.
	Version string
}

// Model is the client's top-level bubbletea model: a room list on the
// left, the open room's timeline and composer on the right, a status
// bar below, and full-screen windows for lists that do not fit that
// split. All state mutation happens on the update loop; network work
// runs in commands that report back as messages.
type Model struct {
	config Config
	theme  Theme
	keys   KeyMap

	width  int
	height int
	ready  bool

	focus FocusRegion

	rooms    RoomList
	timeline Timeline
	composer Composer
	window   Window
	prompt   LineInput

	// Cached header fields for the open room, refreshed on every
	// timeline rebuild so View never touches the store.
	openRoomID     ref.RoomID
	openRoomName   string
	openRoomTopic  string
	openMembership chat.Membership
	openInvitedBy  ref.UserID
	openFetch      chat.FetchStatus
	typingLine     string

	// cursor is the timeline selection. The room states get a copy at
	// dispatch time; the model owns the live one.
	cursor    chat.MessageKey
	hasCursor bool

	roomStates map[ref.RoomID]*chat.RoomState

	// pending marks rooms with a network command in flight. While set,
	// further commands and selection writes for that room are refused,
	// so the command goroutine reads the room state unraced.
	pending map[ref.RoomID]bool

	// Parked composer contents for rooms that are not open.
	drafts  map[ref.RoomID]string
	banners map[ref.RoomID]string

	// fetchingOlder marks rooms with a history fetch requested, and
	// fetchMark remembers the pagination status at request time so the
	// marker can retire once the status moves.
	fetchingOlder map[ref.RoomID]bool
	fetchMark     map[ref.RoomID]chat.FetchStatus

	notice      string
	noticeLevel slog.Level
	noticeSeq   int

	typingActive      bool
	typingTickRunning bool
	lastTypingSent    time.Time
	lastKeystroke     time.Time

	userLine string

	// now is the wall clock, swappable in tests.
	now func() time.Time
}

// NewModel builds the model and opens the welcome window.
func NewModel(cfg Config) Model {
	if len(cfg.Keys.Quit.Keys()) == 0 {
		cfg.Keys = DefaultKeyMap
	}
	theme := ThemeNamed(cfg.UI.Theme)
	model := Model{
		config:        cfg,
		theme:         theme,
		keys:          cfg.Keys,
		focus:         FocusComposer,
		rooms:         NewRoomList(theme),
		timeline:      NewTimeline(theme, cfg.UI.TimeFormat, cfg.Settings.ShowReceipts, cfg.Store.UserID()),
		composer:      NewComposer(theme),
		window:        NewWindow(theme),
		prompt:        LineInput{Prompt: ":"},
		roomStates:    make(map[ref.RoomID]*chat.RoomState),
		pending:       make(map[ref.RoomID]bool),
		drafts:        make(map[ref.RoomID]string),
		banners:       make(map[ref.RoomID]string),
		fetchingOlder: make(map[ref.RoomID]bool),
		fetchMark:     make(map[ref.RoomID]chat.FetchStatus),
		userLine:      cfg.Store.UserID().String(),
		now:           time.Now,
	}
	model.rooms.SetRooms(cfg.Store.Rooms())
	model.syncOpenRoom()
	model.openWelcome()
	return model
}

// Init starts the worker listener and the cursor blink.
func (model Model) Init() tea.Cmd {
	return tea.Batch(listenForEvents(model.config.Events), textarea.Blink)
}

// listenForEvents blocks until the worker pulses the events channel,
// then wakes the update loop. The handler re-arms it; a closed channel
// ends the listen loop.
func listenForEvents(events <-chan struct{}) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return syncEventMsg{}
	}
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.layout()
		model.rebuildTimeline()
		model.maybeInitialFetch()
		return model, nil

	case syncEventMsg:
		return model, tea.Batch(
			listenForEvents(model.config.Events),
			model.refresh(),
			model.armTypingTick(),
		)

	case logRecordMsg:
		return model, model.setNotice(message.Summary, message.Level)

	case noticeFadeMsg:
		if message.seq == model.noticeSeq {
			model.notice = ""
		}
		return model, nil

	case typingTickMsg:
		return model.handleTypingTick()

	case commandDoneMsg:
		return model.handleCommandDone(message)

	case asyncDoneMsg:
		return model.handleAsyncDone(message)

	case membersMsg:
		if message.err != nil {
			return model, model.setNotice(firstLine(message.err.Error()), slog.LevelError)
		}
		model.window.Open(windowMembers, message.name, memberLines(model.theme, message.members, model.config.Store.Presence))
		return model, nil

	case spaceMsg:
		if message.err != nil {
			return model, model.setNotice(firstLine(message.err.Error()), slog.LevelError)
		}
		store := model.config.Store
		joined := func(roomID ref.RoomID) bool {
			return store.Membership(roomID) == chat.MembershipJoined
		}
		model.window.Open(windowSpace, message.name, spaceLines(model.theme, message.children, joined))
		return model, nil
	}

	// Everything else is for the textarea, cursor blinks included.
	return model, model.composer.Update(message)
}

// handleKey routes a key press. The quit chord always wins; then the
// modal surfaces in order, then the global chords, then the focused
// pane.
func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.Quit) {
		return model, tea.Quit
	}
	if model.prompt.Active {
		return model.handlePromptKeys(message)
	}
	if model.rooms.Filter.Active {
		return model.handleFilterKeys(message)
	}
	if model.window.IsOpen() {
		return model.handleWindowKeys(message)
	}

	switch {
	case key.Matches(message, model.keys.FocusToggle):
		return model, model.cycleFocus()
	case key.Matches(message, model.keys.NextRoom):
		model.rooms.MoveDown()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.PrevRoom):
		model.rooms.MoveUp()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.NextUnread):
		if model.rooms.NextUnread() {
			return model, model.afterRoomMove()
		}
		return model, model.setNotice("no unread rooms", slog.LevelInfo)
	case key.Matches(message, model.keys.Filter):
		model.rooms.Filter.Open()
		model.rooms.Refilter()
		return model, tea.Batch(model.setFocus(FocusRooms), model.afterRoomMove())
	}

	switch model.focus {
	case FocusRooms:
		return model.handleRoomsKeys(message)
	case FocusTimeline:
		return model.handleTimelineKeys(message)
	default:
		return model.handleComposerKeys(message)
	}
}

// handlePromptKeys owns input while the ":" prompt is open.
func (model Model) handlePromptKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEsc:
		model.prompt.Close()
		return model, nil
	case tea.KeyEnter:
		line := model.prompt.Value
		model.prompt.Close()
		if strings.TrimSpace(line) == "" {
			return model, nil
		}
		action, err := model.config.Commands.Dispatch(line)
		if err != nil {
			return model, model.setNotice(firstLine(err.Error()), slog.LevelError)
		}
		return model.applyAction(action)
	}
	model.prompt.HandleKey(message)
	return model, nil
}

// handleFilterKeys owns input while the room filter is being edited.
// Escape clears the text first and closes on a second press; enter
// confirms, keeping the filter applied.
func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Cancel):
		if model.rooms.Filter.Value != "" {
			model.rooms.Filter.Value = ""
			model.rooms.Refilter()
			return model, model.afterRoomMove()
		}
		model.rooms.Filter.Active = false
		return model, nil
	case message.Type == tea.KeyEnter:
		model.rooms.Filter.Active = false
		return model, nil
	}
	if model.rooms.Filter.HandleKey(message) {
		model.rooms.Refilter()
		return model, model.afterRoomMove()
	}
	return model, nil
}

// handleWindowKeys owns input while a full-screen window is up. The
// prompt stays reachable so ":verify accept" can be typed over the
// verification list.
func (model Model) handleWindowKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Cancel):
		model.window.Close()
	case key.Matches(message, model.keys.Command):
		model.prompt.Open()
	case key.Matches(message, model.keys.Up):
		model.window.ScrollUp(1)
	case key.Matches(message, model.keys.Down):
		model.window.ScrollDown(1)
	case key.Matches(message, model.keys.PageUp):
		model.window.ScrollUp(model.window.PageSize())
	case key.Matches(message, model.keys.PageDown):
		model.window.ScrollDown(model.window.PageSize())
	}
	return model, nil
}

func (model Model) handleRoomsKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Command):
		model.prompt.Open()
	case key.Matches(message, model.keys.Up):
		model.rooms.MoveUp()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.Down):
		model.rooms.MoveDown()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.PageUp):
		model.rooms.PageUp()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.PageDown):
		model.rooms.PageDown()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.Home):
		model.rooms.Home()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.End):
		model.rooms.End()
		return model, model.afterRoomMove()
	case key.Matches(message, model.keys.MarkRead):
		model.markRead()
	case key.Matches(message, model.keys.Cancel):
		if model.rooms.Filter.Value != "" {
			model.rooms.Filter.Value = ""
			model.rooms.Refilter()
			return model, model.afterRoomMove()
		}
	case message.Type == tea.KeyEnter:
		if summary, ok := model.rooms.Selected(); ok && summary.IsSpace {
			return model.fetchSpace(summary)
		}
		return model, model.setFocus(FocusComposer)
	}
	return model, nil
}

func (model Model) handleTimelineKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Command):
		model.prompt.Open()
	case key.Matches(message, model.keys.Up):
		model.selectOlder()
	case key.Matches(message, model.keys.Down):
		model.selectNewer()
	case key.Matches(message, model.keys.PageUp):
		model.timeline.ScrollUp(model.timeline.PageSize())
		if model.timeline.AtTop() && model.maybeFetchOlder() {
			model.rebuildTimeline()
		}
	case key.Matches(message, model.keys.PageDown):
		model.timeline.ScrollDown(model.timeline.PageSize())
	case key.Matches(message, model.keys.Home):
		model.timeline.GotoTop()
		if model.maybeFetchOlder() {
			model.rebuildTimeline()
		}
	case key.Matches(message, model.keys.End), key.Matches(message, model.keys.Cancel):
		model.clearCursor()
	case key.Matches(message, model.keys.MarkRead):
		model.markRead()
	case key.Matches(message, model.keys.Reply):
		return model.applyMessageSync(chat.MessageReply{})
	case key.Matches(message, model.keys.Edit):
		return model.applyMessageSync(chat.MessageEdit{})
	case key.Matches(message, model.keys.Download):
		return model.dispatchDownload(false, false)
	case message.Type == tea.KeyEnter:
		return model, model.setFocus(FocusComposer)
	}
	return model, nil
}

func (model Model) handleComposerKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Command) && model.composer.Empty():
		model.prompt.Open()
		return model, nil
	case key.Matches(message, model.keys.Send):
		return model.submitComposer()
	case key.Matches(message, model.keys.Newline):
		model.composer.InsertNewline()
		model.layout()
		return model, model.composerActivity()
	case key.Matches(message, model.keys.Cancel):
		if model.composer.Banner() != "" {
			return model.applyMessageSync(chat.MessageCancel{})
		}
		return model, model.setFocus(FocusTimeline)
	case key.Matches(message, model.keys.PageUp):
		model.timeline.ScrollUp(model.timeline.PageSize())
		if model.timeline.AtTop() && model.maybeFetchOlder() {
			model.rebuildTimeline()
		}
		return model, nil
	case key.Matches(message, model.keys.PageDown):
		model.timeline.ScrollDown(model.timeline.PageSize())
		return model, nil
	}

	cmd := model.composer.Update(message)
	model.layout()
	if !model.hasCursor {
		model.timeline.GotoBottom()
	}
	return model, tea.Batch(cmd, model.composerActivity())
}

// applyAction executes a resolved command line.
func (model Model) applyAction(action chatcmd.Action) (tea.Model, tea.Cmd) {
	switch action := action.(type) {
	case chatcmd.Message:
		switch inner := action.Action.(type) {
		case chat.MessageCancel, chat.MessageEdit, chat.MessageReply:
			return model.applyMessageSync(inner)
		default:
			return model.dispatchMessageCommand(inner)
		}
	case chatcmd.Send:
		switch inner := action.Action.(type) {
		case chat.SendUpload:
			return model.dispatchUpload(inner.Path)
		default:
			return model.dispatchSend(inner, "", "")
		}
	case chatcmd.Room:
		return model.dispatchRoomAction(action.Action)
	case chatcmd.Verify:
		return model.dispatchVerify(action.Action)
	case chatcmd.Download:
		return model.dispatchDownload(action.Force, action.Open)
	case chatcmd.Join:
		return model.dispatchJoin(action.Target)
	case chatcmd.Leave:
		return model.dispatchLeave()
	case chatcmd.InviteAccept:
		return model.dispatchInviteAccept()
	case chatcmd.InviteReject:
		return model.dispatchInviteReject()
	case chatcmd.ShowWindow:
		return model.showWindow(action.Window)
	}
	return model, nil
}

// applyMessageSync runs a message action that never leaves the
// process: cancel, begin-edit, begin-reply. Blocked while the room has
// a command in flight, because that command's goroutine reads the same
// room state.
func (model Model) applyMessageSync(action chat.MessageAction) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("busy, try again in a moment", slog.LevelWarn)
	}
	model.syncSelection(rs)
	info, err := rs.MessageCommand(context.Background(), action)
	if err != nil {
		return model, model.setNotice(firstLine(err.Error()), slog.LevelError)
	}
	switch action.(type) {
	case chat.MessageCancel:
		model.composer.SetBanner("")
		model.layout()
		return model, nil
	case chat.MessageEdit:
		model.composer.SetValue(info)
		model.composer.SetBanner("editing message")
		model.layout()
		return model, model.setFocus(FocusComposer)
	case chat.MessageReply:
		model.composer.SetBanner("replying to " + model.senderName(model.cursor))
		model.layout()
		return model, model.setFocus(FocusComposer)
	}
	return model, nil
}

// dispatchMessageCommand runs a message action that goes to the
// network, holding the room's pending slot until the reply lands.
func (model Model) dispatchMessageCommand(action chat.MessageAction) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("busy, try again in a moment", slog.LevelWarn)
	}
	model.syncSelection(rs)
	model.pending[model.openRoomID] = true
	roomID := model.openRoomID
	return model, func() tea.Msg {
		_, err := rs.MessageCommand(context.Background(), action)
		return commandDoneMsg{roomID: roomID, err: err}
	}
}

// dispatchDownload fetches the selected attachment, optionally handing
// the saved file to the system opener.
func (model Model) dispatchDownload(force, open bool) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if open && model.config.OpenFile == nil {
		return model, model.setNotice("no opener configured", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("busy, try again in a moment", slog.LevelWarn)
	}
	model.syncSelection(rs)
	model.pending[model.openRoomID] = true
	roomID := model.openRoomID
	opener := model.config.OpenFile
	return model, func() tea.Msg {
		path, err := rs.MessageCommand(context.Background(), chat.MessageDownload{Force: force})
		if err != nil {
			return commandDoneMsg{roomID: roomID, err: err}
		}
		done := commandDoneMsg{roomID: roomID, info: "saved to " + path}
		if open {
			if err := opener(path); err != nil {
				done.err = fmt.Errorf("open %s: %w", path, err)
			} else {
				done.info = "opened " + path
			}
		}
		return done
	}
}

// submitComposer sends the draft. The composer is cleared up front so
// typing can continue; a failed send puts the draft back as long as
// nothing new was typed over it.
func (model Model) submitComposer() (tea.Model, tea.Cmd) {
	if model.composer.Empty() {
		return model, nil
	}
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("still sending, hold on", slog.LevelWarn)
	}
	text := model.composer.Value()
	banner := model.composer.Banner()
	model.composer.Reset()
	model.composer.SetBanner("")
	model.layout()

	var cmds []tea.Cmd
	if model.typingActive {
		model.typingActive = false
		cmds = append(cmds, composingCmd(rs, false))
	}
	return model, tea.Batch(append(cmds, model.sendCmd(rs, chat.SendSubmit{Text: text}, text, banner))...)
}

// dispatchSend runs a composer-level action through the pending gate.
func (model Model) dispatchSend(action chat.SendAction, restore, restoreBanner string) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("busy, try again in a moment", slog.LevelWarn)
	}
	return model, model.sendCmd(rs, action, restore, restoreBanner)
}

func (model *Model) sendCmd(rs *chat.RoomState, action chat.SendAction, restore, restoreBanner string) tea.Cmd {
	model.pending[model.openRoomID] = true
	roomID := model.openRoomID
	return func() tea.Msg {
		_, err := rs.SendCommand(context.Background(), action)
		return commandDoneMsg{roomID: roomID, err: err, restore: restore, restoreBanner: restoreBanner}
	}
}

// dispatchUpload sends a file into the open room.
func (model Model) dispatchUpload(path string) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	if model.pending[model.openRoomID] {
		return model, model.setNotice("busy, try again in a moment", slog.LevelWarn)
	}
	model.pending[model.openRoomID] = true
	roomID := model.openRoomID
	return model, func() tea.Msg {
		_, err := rs.SendCommand(context.Background(), chat.SendUpload{Path: path})
		if err != nil {
			return commandDoneMsg{roomID: roomID, err: err}
		}
		return commandDoneMsg{roomID: roomID, info: "uploaded " + filepath.Base(path)}
	}
}

// dispatchRoomAction runs an invite or profile change against the open
// room. These do not hold the pending slot: they touch no message
// state, so a send can overlap them safely.
func (model Model) dispatchRoomAction(action chat.RoomAction) (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	return model, func() tea.Msg {
		info, err := rs.RoomCommand(context.Background(), action)
		return asyncDoneMsg{info: info, err: err}
	}
}

func (model Model) dispatchVerify(action chat.VerifyAction) (tea.Model, tea.Cmd) {
	var info string
	switch action.(type) {
	case chat.VerifyRequest:
		info = "verification requested"
	case chat.VerifyAccept:
		info = "verification accepted"
	case chat.VerifyConfirm:
		info = "verification confirmed"
	case chat.VerifyCancel:
		info = "verification canceled"
	}
	requester := model.config.Requester
	return model, func() tea.Msg {
		if err := requester.Verify(context.Background(), action); err != nil {
			return asyncDoneMsg{err: err}
		}
		return asyncDoneMsg{info: info}
	}
}

func (model Model) dispatchJoin(target string) (tea.Model, tea.Cmd) {
	target = strings.TrimSpace(target)
	requester := model.config.Requester
	return model, func() tea.Msg {
		roomID, err := requester.Join(context.Background(), target)
		if err != nil {
			return asyncDoneMsg{err: err}
		}
		return asyncDoneMsg{info: "joined " + target, focusRoom: roomID}
	}
}

func (model Model) dispatchLeave() (tea.Model, tea.Cmd) {
	if model.openRoomID.IsZero() {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	requester := model.config.Requester
	roomID := model.openRoomID
	name := model.openRoomName
	return model, func() tea.Msg {
		if err := requester.Leave(context.Background(), roomID); err != nil {
			return asyncDoneMsg{err: err}
		}
		return asyncDoneMsg{info: "left " + name}
	}
}

func (model Model) dispatchInviteAccept() (tea.Model, tea.Cmd) {
	if model.openMembership != chat.MembershipInvited {
		return model, model.setNotice("no invite selected", slog.LevelWarn)
	}
	requester := model.config.Requester
	roomID := model.openRoomID
	name := model.openRoomName
	return model, func() tea.Msg {
		joined, err := requester.AcceptInvite(context.Background(), roomID)
		if err != nil {
			return asyncDoneMsg{err: err}
		}
		return asyncDoneMsg{info: "joined " + name, focusRoom: joined}
	}
}

func (model Model) dispatchInviteReject() (tea.Model, tea.Cmd) {
	if model.openMembership != chat.MembershipInvited {
		return model, model.setNotice("no invite selected", slog.LevelWarn)
	}
	requester := model.config.Requester
	roomID := model.openRoomID
	name := model.openRoomName
	return model, func() tea.Msg {
		if err := requester.Leave(context.Background(), roomID); err != nil {
			return asyncDoneMsg{err: err}
		}
		return asyncDoneMsg{info: "declined invite to " + name}
	}
}

// showWindow handles the list windows. Rooms, directs, and spaces are
// room-list modes rather than overlays; the rest open full screen.
func (model Model) showWindow(window chatcmd.Window) (tea.Model, tea.Cmd) {
	switch window {
	case chatcmd.WindowRooms, chatcmd.WindowDirects, chatcmd.WindowSpaces:
		mode := ListRooms
		switch window {
		case chatcmd.WindowDirects:
			mode = ListDirects
		case chatcmd.WindowSpaces:
			mode = ListSpaces
		}
		model.window.Close()
		model.rooms.SetMode(mode)
		return model, tea.Batch(model.setFocus(FocusRooms), model.afterRoomMove())
	case chatcmd.WindowMembers:
		return model.fetchMembers()
	case chatcmd.WindowVerifications:
		model.window.Open(windowVerifications, "verifications",
			verificationLines(model.theme, model.config.Store.Verifications(), model.now()))
		return model, nil
	case chatcmd.WindowWelcome:
		model.openWelcome()
		return model, nil
	}
	return model, nil
}

func (model *Model) openWelcome() {
	var commands []*chatcmd.Command
	if model.config.Commands != nil {
		commands = model.config.Commands.Commands()
	}
	model.window.Open(windowWelcome, "welcome", welcomeLines(model.theme, model.config.Version, commands))
}

func (model Model) fetchMembers() (tea.Model, tea.Cmd) {
	rs := model.openRoomState()
	if rs == nil {
		return model, model.setNotice("no room selected", slog.LevelWarn)
	}
	name := model.openRoomName
	return model, func() tea.Msg {
		members, err := rs.Members(context.Background())
		return membersMsg{name: name, members: members, err: err}
	}
}

func (model Model) fetchSpace(summary chat.RoomSummary) (tea.Model, tea.Cmd) {
	requester := model.config.Requester
	roomID := summary.RoomID
	name := summary.Name
	return model, func() tea.Msg {
		children, err := requester.SpaceChildren(context.Background(), roomID)
		return spaceMsg{name: name, children: children, err: err}
	}
}

// handleCommandDone releases the room's pending slot and reports the
// outcome. A failed send restores the draft unless something new was
// typed meanwhile.
func (model Model) handleCommandDone(message commandDoneMsg) (tea.Model, tea.Cmd) {
	delete(model.pending, message.roomID)
	var cmds []tea.Cmd
	if message.err != nil {
		cmds = append(cmds, model.setNotice(firstLine(message.err.Error()), slog.LevelError))
		if message.restore != "" {
			if message.roomID == model.openRoomID && model.composer.Empty() {
				model.composer.SetValue(message.restore)
				model.composer.SetBanner(message.restoreBanner)
				model.layout()
			} else if message.roomID != model.openRoomID && model.drafts[message.roomID] == "" {
				model.drafts[message.roomID] = message.restore
				model.banners[message.roomID] = message.restoreBanner
			}
		}
	} else if message.info != "" {
		cmds = append(cmds, model.setNotice(message.info, slog.LevelInfo))
	}
	cmds = append(cmds, model.refresh())
	return model, tea.Batch(cmds...)
}

// handleAsyncDone reports a room-independent command and optionally
// moves the selection to a freshly joined room. The worker records the
// join before replying, so the room is already in the store here.
func (model Model) handleAsyncDone(message asyncDoneMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch {
	case message.err != nil:
		cmds = append(cmds, model.setNotice(firstLine(message.err.Error()), slog.LevelError))
	case message.info != "":
		cmds = append(cmds, model.setNotice(message.info, slog.LevelInfo))
	}
	cmds = append(cmds, model.refresh())
	if !message.focusRoom.IsZero() && message.err == nil {
		model.rooms.Select(message.focusRoom)
		if selected, ok := model.rooms.Selected(); !ok || selected.RoomID != message.focusRoom {
			model.rooms.SetMode(ListRooms)
			model.rooms.Select(message.focusRoom)
		}
		cmds = append(cmds, model.afterRoomMove())
	}
	return model, tea.Batch(cmds...)
}

// refresh re-reads the store after a worker pulse or a command: room
// list, open-room reconciliation, timeline, and the verification
// window when it is showing.
func (model *Model) refresh() tea.Cmd {
	model.rooms.SetRooms(model.config.Store.Rooms())
	cmd := model.syncOpenRoom()
	model.rebuildTimeline()
	model.maybeInitialFetch()
	if model.window.Kind() == windowVerifications {
		model.window.SetLines(verificationLines(model.theme, model.config.Store.Verifications(), model.now()))
	}
	return cmd
}

// afterRoomMove follows a room-list selection change.
func (model *Model) afterRoomMove() tea.Cmd {
	cmd := model.syncOpenRoom()
	model.rebuildTimeline()
	model.maybeInitialFetch()
	return cmd
}

// syncOpenRoom reconciles the open room with the list selection: parks
// the departing draft, stops typing there, restores the arriving
// draft, and drops the cursor. Returns the typing-stop command, nil
// when there is nothing to stop.
func (model *Model) syncOpenRoom() tea.Cmd {
	selected := ref.RoomID{}
	if summary, ok := model.rooms.Selected(); ok {
		selected = summary.RoomID
	}
	if selected == model.openRoomID {
		return nil
	}

	var cmd tea.Cmd
	if !model.openRoomID.IsZero() {
		model.drafts[model.openRoomID] = model.composer.Value()
		model.banners[model.openRoomID] = model.composer.Banner()
		if model.typingActive {
			model.typingActive = false
			if rs := model.roomStates[model.openRoomID]; rs != nil {
				cmd = composingCmd(rs, false)
			}
		}
	}

	model.openRoomID = selected
	model.hasCursor = false
	model.cursor = chat.MessageKey{}
	model.composer.SetValue(model.drafts[selected])
	model.composer.SetBanner(model.banners[selected])
	delete(model.drafts, selected)
	delete(model.banners, selected)
	model.layout()
	return cmd
}

// rebuildTimeline re-renders the open room and refreshes the cached
// header fields. It only observes: fetch marking happens outside the
// store callback, because store methods must not be re-entered from
// inside one.
func (model *Model) rebuildTimeline() {
	if !model.ready {
		return
	}
	model.openRoomName = ""
	model.openRoomTopic = ""
	model.openMembership = chat.MembershipUnknown
	model.openInvitedBy = ref.UserID{}
	model.openFetch = chat.FetchStatus{}
	model.typingLine = ""

	if model.openRoomID.IsZero() {
		model.timeline.Clear()
		return
	}

	now := model.now()
	roomID := model.openRoomID
	fetching := model.fetchingOlder[roomID]
	found := model.config.Store.WithRoom(roomID, func(info *chat.RoomInfo) {
		model.openRoomName = info.DisplayName()
		model.openRoomTopic = info.Topic
		model.openMembership = info.Membership
		model.openInvitedBy = info.InvitedBy
		model.openFetch = info.FetchStatus
		if model.config.Settings.ShowTyping {
			model.typingLine = info.Typing.Render(now)
		}
		// Retire the pagination marker once the status moved past the
		// point where the fetch was requested.
		if fetching && info.FetchStatus != model.fetchMark[roomID] {
			fetching = false
			delete(model.fetchingOlder, roomID)
			delete(model.fetchMark, roomID)
		}
		if info.Membership != chat.MembershipInvited {
			model.timeline.Rebuild(info, model.cursor, model.hasCursor, fetching)
		}
	})
	if !found || model.openMembership == chat.MembershipInvited {
		model.timeline.Clear()
	}
}

// maybeInitialFetch starts the first history fetch when a joined room
// is opened before any page landed.
func (model *Model) maybeInitialFetch() {
	if model.openRoomID.IsZero() || model.openMembership != chat.MembershipJoined {
		return
	}
	if model.openFetch.State != chat.FetchNotStarted || model.fetchingOlder[model.openRoomID] {
		return
	}
	model.markFetch()
	model.rebuildTimeline()
}

// maybeFetchOlder requests another history page when the scrollback
// hit its oldest loaded message. Reports whether a fetch was queued.
func (model *Model) maybeFetchOlder() bool {
	if model.openRoomID.IsZero() || model.openMembership != chat.MembershipJoined {
		return false
	}
	if model.openFetch.State == chat.FetchDone || model.fetchingOlder[model.openRoomID] {
		return false
	}
	model.markFetch()
	return true
}

func (model *Model) markFetch() {
	model.config.Store.MarkNeedsLoad(model.openRoomID)
	model.fetchingOlder[model.openRoomID] = true
	model.fetchMark[model.openRoomID] = model.openFetch
}

// openRoomState returns the open room's command surface, creating it
// on first use.
func (model *Model) openRoomState() *chat.RoomState {
	if model.openRoomID.IsZero() {
		return nil
	}
	rs, ok := model.roomStates[model.openRoomID]
	if !ok {
		rs = chat.NewRoomState(model.openRoomID, model.config.Store, model.config.Requester)
		model.roomStates[model.openRoomID] = rs
	}
	return rs
}

// syncSelection hands the model's cursor to the room state right
// before a command dispatch reads it.
func (model *Model) syncSelection(rs *chat.RoomState) {
	if model.hasCursor {
		rs.Select(model.cursor)
	} else {
		rs.ClearSelection()
	}
}

func (model *Model) selectOlder() {
	if !model.hasCursor {
		last, ok := model.timeline.LastKey()
		if !ok {
			return
		}
		model.cursor = last
		model.hasCursor = true
	} else if previous, ok := model.timeline.KeyBefore(model.cursor); ok {
		model.cursor = previous
	} else {
		model.maybeFetchOlder()
	}
	model.rebuildTimeline()
	model.timeline.ScrollToSelected(model.cursor)
}

func (model *Model) selectNewer() {
	if !model.hasCursor {
		return
	}
	if next, ok := model.timeline.KeyAfter(model.cursor); ok {
		model.cursor = next
		model.rebuildTimeline()
		model.timeline.ScrollToSelected(model.cursor)
		return
	}
	model.clearCursor()
}

func (model *Model) clearCursor() {
	model.hasCursor = false
	model.cursor = chat.MessageKey{}
	model.rebuildTimeline()
	model.timeline.GotoBottom()
}

// markRead records the read position. Always allowed; the selection is
// only synced over when no command is reading it.
func (model *Model) markRead() {
	rs := model.openRoomState()
	if rs == nil {
		return
	}
	if !model.pending[model.openRoomID] {
		model.syncSelection(rs)
	}
	rs.MarkRead()
}

// senderName looks up who sent the message at key, for reply banners.
func (model Model) senderName(key chat.MessageKey) string {
	name := "message"
	model.config.Store.WithRoom(model.openRoomID, func(info *chat.RoomInfo) {
		if message, ok := info.Messages.Get(key); ok {
			name = message.Sender.Localpart()
		}
	})
	return name
}

// composerActivity runs after every composer keystroke: it signals
// typing to the room, throttled, and keeps the tick alive for the
// stopped-typing check.
func (model *Model) composerActivity() tea.Cmd {
	now := model.now()
	model.lastKeystroke = now
	if !model.config.Settings.SendTyping {
		return nil
	}
	if model.openMembership != chat.MembershipJoined {
		return nil
	}
	rs := model.openRoomState()
	if rs == nil {
		return nil
	}
	var cmds []tea.Cmd
	if !model.typingActive || now.Sub(model.lastTypingSent) >= typingResendInterval {
		model.typingActive = true
		model.lastTypingSent = now
		cmds = append(cmds, composingCmd(rs, true))
	}
	cmds = append(cmds, model.armTypingTick())
	return tea.Batch(cmds...)
}

// composingCmd forwards typing activity. Best effort: the worker logs
// delivery failures on its own.
func composingCmd(rs *chat.RoomState, active bool) tea.Cmd {
	return func() tea.Msg {
		if err := rs.Composing(context.Background(), active); err != nil {
			return asyncDoneMsg{err: err}
		}
		return nil
	}
}

// armTypingTick keeps a one-second tick running while the typing row
// shows something or the local user counts as typing.
func (model *Model) armTypingTick() tea.Cmd {
	if model.typingTickRunning {
		return nil
	}
	if model.typingLine == "" && !model.typingActive {
		return nil
	}
	model.typingTickRunning = true
	return tea.Tick(typingTickInterval, func(time.Time) tea.Msg {
		return typingTickMsg{}
	})
}

func (model Model) handleTypingTick() (tea.Model, tea.Cmd) {
	model.typingTickRunning = false
	var cmds []tea.Cmd
	if model.typingActive && model.now().Sub(model.lastKeystroke) >= composerIdleAfter {
		model.typingActive = false
		if rs := model.roomStates[model.openRoomID]; rs != nil {
			cmds = append(cmds, composingCmd(rs, false))
		}
	}
	model.refreshTypingLine()
	cmds = append(cmds, model.armTypingTick())
	return model, tea.Batch(cmds...)
}

// refreshTypingLine re-reads who is typing so stale entries age out
// between sync pulses.
func (model *Model) refreshTypingLine() {
	model.typingLine = ""
	if !model.config.Settings.ShowTyping || model.openRoomID.IsZero() {
		return
	}
	now := model.now()
	model.config.Store.WithRoom(model.openRoomID, func(info *chat.RoomInfo) {
		model.typingLine = info.Typing.Render(now)
	})
}

// setNotice shows text in the status bar and arms its fade.
func (model *Model) setNotice(text string, level slog.Level) tea.Cmd {
	model.notice = text
	model.noticeLevel = level
	model.noticeSeq++
	seq := model.noticeSeq
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{seq: seq}
	})
}

func (model *Model) setFocus(focus FocusRegion) tea.Cmd {
	if model.focus == focus {
		return nil
	}
	model.focus = focus
	if focus == FocusComposer {
		return model.composer.Focus()
	}
	model.composer.Blur()
	return nil
}

func (model *Model) cycleFocus() tea.Cmd {
	switch model.focus {
	case FocusRooms:
		return model.setFocus(FocusTimeline)
	case FocusTimeline:
		return model.setFocus(FocusComposer)
	default:
		return model.setFocus(FocusRooms)
	}
}

// layout distributes the terminal between the panes. Called on resize
// and whenever the composer's height may have changed.
func (model *Model) layout() {
	if !model.ready {
		return
	}
	content := model.contentHeight()
	paneWidth := model.roomPaneWidth()
	model.rooms.SetSize(model.listWidth(), content)
	model.window.SetSize(model.width, content)
	model.composer.SetWidth(paneWidth)

	timelineHeight := content - model.composer.Height()
	if model.config.Settings.ShowTyping {
		timelineHeight--
	}
	if timelineHeight < 1 {
		timelineHeight = 1
	}
	model.timeline.SetSize(paneWidth, timelineHeight)
}

func (model Model) listWidth() int {
	width := model.config.UI.RoomListWidth
	if width <= 0 {
		width = 28
	}
	if half := model.width / 2; width > half {
		width = half
	}
	if width < 16 {
		width = 16
	}
	return width
}

func (model Model) roomPaneWidth() int {
	width := model.width - model.listWidth() - 1
	if width < 10 {
		width = 10
	}
	return width
}

func (model Model) contentHeight() int {
	height := model.height - 1
	if height < 1 {
		height = 1
	}
	return height
}

func (model Model) View() string {
	if !model.ready {
		return "starting parley..."
	}
	var body string
	if model.window.IsOpen() {
		body = model.window.View()
	} else {
		divider := lipgloss.NewStyle().
			Foreground(model.theme.BorderColor).
			Render(strings.TrimSuffix(strings.Repeat("│\n", model.contentHeight()), "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			model.rooms.View(model.focus == FocusRooms),
			divider,
			model.renderRoomPane(),
		)
	}
	return body + "\n" + model.renderFooter()
}

// renderRoomPane is the right side of the split: timeline (or invite
// splash), typing row, composer.
func (model Model) renderRoomPane() string {
	width := model.roomPaneWidth()

	if model.openRoomID.IsZero() {
		return model.renderEmptyPane(width)
	}

	timelineHeight := model.contentHeight() - model.composer.Height()
	if model.config.Settings.ShowTyping {
		timelineHeight--
	}
	if timelineHeight < 1 {
		timelineHeight = 1
	}

	var middle string
	if model.openMembership == chat.MembershipInvited {
		middle = model.renderInviteSplash(width, timelineHeight)
	} else {
		middle = model.timeline.View()
	}

	sections := []string{middle}
	if model.config.Settings.ShowTyping {
		sections = append(sections, model.renderTypingRow(width))
	}
	sections = append(sections, model.composer.View(width))
	return strings.Join(sections, "\n")
}

func (model Model) renderEmptyPane(width int) string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	lines := []string{
		"",
		"  " + lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true).Render("no rooms yet"),
		"",
		"  " + faint.Render(":join #room:example.org joins a room"),
		"  " + faint.Render(":join @friend:example.org starts a direct message"),
	}
	return padBlock(lines, width, model.contentHeight())
}

func (model Model) renderInviteSplash(width, height int) string {
	title := lipgloss.NewStyle().
		Foreground(model.theme.InviteColor).
		Bold(true).
		Render("invite: " + model.openRoomName)
	lines := []string{"", "  " + title}
	if !model.openInvitedBy.IsZero() {
		lines = append(lines, "  "+lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render("from "+model.openInvitedBy.String()))
	}
	lines = append(lines,
		"",
		"  :invite accept joins the room",
		"  :invite reject declines",
	)
	return padBlock(lines, width, height)
}

func (model Model) renderTypingRow(width int) string {
	if model.typingLine == "" {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.FaintText).
		Italic(true).
		Render(ansi.Truncate(model.typingLine, width, "…"))
}

func (model Model) renderFooter() string {
	if model.prompt.Active {
		return ansi.Truncate(model.prompt.View(model.theme), model.width, "")
	}
	line := statusLine{
		room:   model.openRoomName,
		topic:  model.openRoomTopic,
		notice: model.notice,
		level:  model.noticeLevel,
		user:   model.userLine,
	}
	if line.notice == "" {
		line.help = model.helpLine()
	}
	return renderStatusBar(model.theme, model.width, line)
}

func (model Model) helpLine() string {
	keys := model.keys
	if model.window.IsOpen() {
		return fmt.Sprintf("%s close", keys.Cancel.Help().Key)
	}
	switch model.focus {
	case FocusRooms:
		return fmt.Sprintf("enter open · %s filter · %s commands · %s panes",
			keys.Filter.Help().Key, keys.Command.Help().Key, keys.FocusToggle.Help().Key)
	case FocusTimeline:
		return fmt.Sprintf("%s/%s select · %s reply · %s edit · %s read",
			keys.Up.Help().Key, keys.Down.Help().Key,
			keys.Reply.Help().Key, keys.Edit.Help().Key, keys.MarkRead.Help().Key)
	default:
		return fmt.Sprintf("%s send · %s newline · %s commands",
			keys.Send.Help().Key, keys.Newline.Help().Key, keys.Command.Help().Key)
	}
}

// padBlock truncates lines to width and pads the block to height rows.
func padBlock(lines []string, width, height int) string {
	out := make([]string, 0, height)
	for _, line := range lines {
		if len(out) == height {
			break
		}
		out = append(out, ansi.Truncate(line, width, "…"))
	}
	for len(out) < height {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}
