// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// messageGroupWindow is how close together two messages from the same
// sender must land to share one header.
const messageGroupWindow = 5 * time.Minute

// blockSpan maps a rendered message to its line range, for selection
// highlighting and scroll-to-selection.
type blockSpan struct {
	key   chat.MessageKey
	start int
	lines int
}

// Timeline renders one room's message log into a viewport. The model
// owns the selection and passes it to Rebuild; the timeline only draws
// and scrolls.
type Timeline struct {
	theme        Theme
	timeFormat   string
	showReceipts bool
	self         ref.UserID

	viewport viewport.Model
	width    int
	height   int

	roomID ref.RoomID
	keys   []chat.MessageKey
	blocks []blockSpan
}

// NewTimeline returns an empty timeline for the local user self.
func NewTimeline(theme Theme, timeFormat string, showReceipts bool, self ref.UserID) Timeline {
	if timeFormat == "" {
		timeFormat = "15:04"
	}
	return Timeline{
		theme:        theme,
		timeFormat:   timeFormat,
		showReceipts: showReceipts,
		self:         self,
	}
}

// SetSize sets the pane dimensions.
func (t *Timeline) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.viewport.Width = width
	t.viewport.Height = height
}

// AtTop reports whether the view shows the oldest rendered line.
func (t *Timeline) AtTop() bool {
	return t.viewport.YOffset == 0
}

// ScrollUp moves the view up by n lines.
func (t *Timeline) ScrollUp(n int) {
	t.viewport.SetYOffset(t.viewport.YOffset - n)
}

// ScrollDown moves the view down by n lines.
func (t *Timeline) ScrollDown(n int) {
	t.viewport.SetYOffset(t.viewport.YOffset + n)
}

// PageSize is the line count of one scroll page.
func (t *Timeline) PageSize() int {
	if t.height < 2 {
		return 1
	}
	return t.height - 1
}

// GotoTop scrolls to the oldest rendered line.
func (t *Timeline) GotoTop() {
	t.viewport.GotoTop()
}

// GotoBottom scrolls to the newest rendered line.
func (t *Timeline) GotoBottom() {
	t.viewport.GotoBottom()
}

// FirstKey returns the oldest rendered message key.
func (t *Timeline) FirstKey() (chat.MessageKey, bool) {
	if len(t.keys) == 0 {
		return chat.MessageKey{}, false
	}
	return t.keys[0], true
}

// LastKey returns the newest rendered message key.
func (t *Timeline) LastKey() (chat.MessageKey, bool) {
	if len(t.keys) == 0 {
		return chat.MessageKey{}, false
	}
	return t.keys[len(t.keys)-1], true
}

// KeyBefore returns the rendered key preceding key.
func (t *Timeline) KeyBefore(key chat.MessageKey) (chat.MessageKey, bool) {
	i, _ := slices.BinarySearchFunc(t.keys, key, chat.MessageKey.Compare)
	if i == 0 {
		return chat.MessageKey{}, false
	}
	return t.keys[i-1], true
}

// KeyAfter returns the rendered key following key.
func (t *Timeline) KeyAfter(key chat.MessageKey) (chat.MessageKey, bool) {
	i, found := slices.BinarySearchFunc(t.keys, key, chat.MessageKey.Compare)
	if found {
		i++
	}
	if i >= len(t.keys) {
		return chat.MessageKey{}, false
	}
	return t.keys[i], true
}

// ScrollToSelected brings the selected message's block into view.
func (t *Timeline) ScrollToSelected(selected chat.MessageKey) {
	for _, block := range t.blocks {
		if block.key != selected {
			continue
		}
		if block.start < t.viewport.YOffset {
			t.viewport.SetYOffset(block.start)
		} else if end := block.start + block.lines; end > t.viewport.YOffset+t.height {
			t.viewport.SetYOffset(end - t.height)
		}
		return
	}
}

// Clear empties the timeline, for when no room is open.
func (t *Timeline) Clear() {
	t.roomID = ref.RoomID{}
	t.keys = t.keys[:0]
	t.blocks = t.blocks[:0]
	t.viewport.SetContent("")
}

// Rebuild re-renders the room's log. It runs inside the store's
// WithRoom callback, so it must not block or retain info. fetchingOlder
// shows the in-flight pagination notice at the top of the scrollback.
func (t *Timeline) Rebuild(info *chat.RoomInfo, selected chat.MessageKey, hasSelection, fetchingOlder bool) {
	sameRoom := t.roomID == info.RoomID
	atBottom := t.viewport.AtBottom()
	t.roomID = info.RoomID

	contentWidth := t.width - 2
	if contentWidth < 10 {
		contentWidth = 10
	}

	t.keys = t.keys[:0]
	t.blocks = t.blocks[:0]
	var lines []string

	marker := lipgloss.NewStyle().Foreground(t.theme.HighlightColor).Render("▌ ")
	addLine := func(line string, inSelection bool) {
		prefix := "  "
		if inSelection {
			prefix = marker
		}
		lines = append(lines, prefix+line)
	}

	faint := lipgloss.NewStyle().Foreground(t.theme.FaintText)
	switch {
	case fetchingOlder:
		addLine(faint.Render("fetching older messages..."), false)
	case info.FetchStatus.State == chat.FetchDone:
		addLine(faint.Render("start of conversation"), false)
	}

	var prevSender ref.UserID
	var prevTime time.Time
	var prevDay string
	var prevEventID ref.EventID
	first := true

	for key, message := range info.Messages.All() {
		isSelected := hasSelection && key == selected

		// Date rule when the local day changes. Local echoes carry no
		// server time yet and never force a rule.
		if !key.Time.IsLocalEcho() {
			day := message.Timestamp.Local().Format("2006-01-02")
			if day != prevDay {
				addLine(t.renderRule(day, contentWidth, t.theme.BorderColor), false)
				prevDay = day
				first = true // a rule always restarts grouping
			}
		}

		// Unread rule after the fully-read position.
		if !info.FullyRead.IsZero() && prevEventID == info.FullyRead {
			addLine(t.renderRule("new messages", contentWidth, t.theme.HighlightColor), false)
			first = true
		}

		grouped := !first &&
			message.Sender == prevSender &&
			!key.Time.IsLocalEcho() &&
			!prevTime.IsZero() &&
			message.Timestamp.Sub(prevTime) <= messageGroupWindow

		start := len(lines)
		if !grouped {
			if !first {
				addLine("", false)
			}
			addLine(t.renderHeader(message, key, contentWidth), isSelected)
		}
		for _, line := range t.renderBody(info, message, contentWidth) {
			addLine(line, isSelected)
		}
		for _, line := range t.renderAnnotations(info, key, contentWidth) {
			addLine(line, isSelected)
		}
		t.blocks = append(t.blocks, blockSpan{key: key, start: start, lines: len(lines) - start})
		t.keys = append(t.keys, key)

		prevSender = message.Sender
		prevTime = message.Timestamp
		prevEventID = key.EventID
		first = false
	}

	t.viewport.SetContent(strings.Join(lines, "\n"))
	if !sameRoom || atBottom {
		t.viewport.GotoBottom()
	}
}

// View renders the viewport.
func (t *Timeline) View() string {
	return t.viewport.View()
}

func (t *Timeline) renderRule(label string, width int, color lipgloss.Color) string {
	inner := " " + label + " "
	dashes := width - lipgloss.Width(inner)
	if dashes < 2 {
		dashes = 2
	}
	left := dashes / 2
	rule := strings.Repeat("─", left) + inner + strings.Repeat("─", dashes-left)
	return lipgloss.NewStyle().Foreground(color).Render(rule)
}

func (t *Timeline) renderHeader(message *chat.Message, key chat.MessageKey, width int) string {
	faint := lipgloss.NewStyle().Foreground(t.theme.FaintText)

	stamp := faint.Render(message.Timestamp.Local().Format(t.timeFormat))
	if key.Time.IsLocalEcho() {
		stamp = faint.Render(strings.Repeat("·", len(t.timeFormat)))
	}

	senderStyle := lipgloss.NewStyle().
		Foreground(t.theme.SenderColor(message.Sender, t.self)).
		Bold(true)
	if content, ok := message.Content(); ok && content.MsgType == messaging.MsgTypeNotice {
		senderStyle = senderStyle.Foreground(t.theme.NoticeText).Bold(false)
	}
	header := stamp + " " + senderStyle.Render(message.Sender.String())

	if key.Time.IsLocalEcho() {
		header += " " + faint.Render("(sending...)")
	}
	return ansi.Truncate(header, width, "…")
}

// renderBody renders the message's content lines, already wrapped.
func (t *Timeline) renderBody(info *chat.RoomInfo, message *chat.Message, width int) []string {
	faint := lipgloss.NewStyle().Foreground(t.theme.FaintText)

	switch event := message.Event.(type) {
	case chat.Redacted:
		text := "(message removed)"
		if event.Reason != "" {
			text = fmt.Sprintf("(message removed: %s)", event.Reason)
		}
		return []string{faint.Italic(true).Render(text)}
	case chat.EncryptedOriginal:
		return []string{faint.Italic(true).Render("(message could not be decrypted)")}
	case chat.EncryptedRedacted:
		return []string{faint.Italic(true).Render("(encrypted message removed)")}
	}

	content, ok := message.Content()
	if !ok {
		return nil
	}

	var out []string

	// Reply quote, resolved through the room's event index.
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		out = append(out, t.renderReplyQuote(info, content.RelatesTo.InReplyTo.EventID, width))
	}

	switch content.MsgType {
	case messaging.MsgTypeEmote:
		emote := "* " + message.Sender.Localpart() + " " + content.Body
		wrapped := ansi.Wrap(emote, width, wrapBreakpoints)
		style := lipgloss.NewStyle().Foreground(t.theme.NormalText).Italic(true)
		for _, line := range strings.Split(wrapped, "\n") {
			out = append(out, style.Render(line))
		}
	case messaging.MsgTypeImage, messaging.MsgTypeFile, messaging.MsgTypeAudio, messaging.MsgTypeVideo:
		out = append(out, t.renderAttachment(message, content, width)...)
	default:
		body := content.Body
		if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
			body = stripReplyFallback(body)
		}
		rendered := renderMarkdown(body, t.theme, width)
		if rendered != "" {
			out = append(out, strings.Split(rendered, "\n")...)
		}
	}
	return out
}

func (t *Timeline) renderReplyQuote(info *chat.RoomInfo, target ref.EventID, width int) string {
	faint := lipgloss.NewStyle().Foreground(t.theme.FaintText)
	quote := "↳ in reply to an earlier message"

	if location, ok := info.Location(target); ok {
		if key, ok := location.MessageKey(); ok {
			if original, ok := info.Messages.Get(key); ok {
				snippet := "(no content)"
				if content, ok := original.Content(); ok {
					snippet = firstLine(stripReplyFallback(content.Body))
				}
				quote = fmt.Sprintf("↳ %s: %s", original.Sender.Localpart(), snippet)
			}
		}
	}
	return faint.Render(ansi.Truncate(quote, width, "…"))
}

func (t *Timeline) renderAttachment(message *chat.Message, content messaging.MessageContent, width int) []string {
	name := content.Filename
	if name == "" {
		name = content.Body
	}
	if name == "" {
		name = "attachment"
	}

	detail := ""
	if content.Info != nil {
		parts := make([]string, 0, 2)
		if content.Info.MimeType != "" {
			parts = append(parts, content.Info.MimeType)
		}
		if size := humanSize(content.Info.Size); size != "" {
			parts = append(parts, size)
		}
		if len(parts) > 0 {
			detail = " (" + strings.Join(parts, ", ") + ")"
		}
	}

	state := ":download to fetch"
	if message.Downloaded {
		state = "downloaded"
	}

	line := lipgloss.NewStyle().Foreground(t.theme.LinkText).Render("⇓ "+name) +
		lipgloss.NewStyle().Foreground(t.theme.FaintText).Render(detail+" · "+state)
	out := []string{ansi.Truncate(line, width, "…")}

	if message.Preview != nil && message.Preview.Rendered != "" {
		out = append(out, strings.Split(strings.TrimRight(message.Preview.Rendered, "\n"), "\n")...)
	}
	return out
}

// renderAnnotations renders the reaction chips and receipt line.
func (t *Timeline) renderAnnotations(info *chat.RoomInfo, key chat.MessageKey, width int) []string {
	var out []string

	counts := info.ReactionSummary(key.EventID, t.self)
	if len(counts) > 0 {
		chips := make([]string, 0, len(counts))
		mine := lipgloss.NewStyle().Foreground(t.theme.HighlightColor)
		others := lipgloss.NewStyle().Foreground(t.theme.FaintText)
		for _, count := range counts {
			chip := fmt.Sprintf("[%s %d]", count.Key, count.Count)
			if count.Mine {
				chips = append(chips, mine.Render(chip))
			} else {
				chips = append(chips, others.Render(chip))
			}
		}
		out = append(out, ansi.Truncate(strings.Join(chips, " "), width, "…"))
	}

	if t.showReceipts {
		if line := t.renderReceipts(info.Receipts[key.EventID], width); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (t *Timeline) renderReceipts(users []ref.UserID, width int) string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		if user == t.self {
			continue
		}
		names = append(names, user.Localpart())
	}
	if len(names) == 0 {
		return ""
	}
	slices.Sort(names)

	shown := names
	extra := ""
	if len(names) > 3 {
		shown = names[:3]
		extra = fmt.Sprintf(" +%d", len(names)-3)
	}
	line := "✓ seen by " + strings.Join(shown, ", ") + extra
	return lipgloss.NewStyle().Foreground(t.theme.FaintText).
		Render(ansi.Truncate(line, width, "…"))
}

// stripReplyFallback removes the quoted "> " fallback block that rich
// replies prepend to their plain-text body.
func stripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], "> ") {
		i++
	}
	if i == 0 {
		return body
	}
	// The fallback block ends with one empty line before the real body.
	if i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	case n > 0:
		return fmt.Sprintf("%d B", n)
	default:
		return ""
	}
}
