// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parley-chat/parley/chat"
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/messaging"
)

// ListMode selects which rooms the list shows.
type ListMode int

const (
	// ListRooms shows every non-space room, direct messages included.
	ListRooms ListMode = iota
	// ListDirects shows only direct-message rooms.
	ListDirects
	// ListSpaces shows only spaces.
	ListSpaces
)

func (m ListMode) String() string {
	switch m {
	case ListDirects:
		return "direct messages"
	case ListSpaces:
		return "spaces"
	default:
		return "rooms"
	}
}

// roomSection orders the list: invites surface first so they are seen,
// favourites next, then everything else, low priority last. Within a
// section rooms keep the store's newest-activity-first order.
type roomSection int

const (
	sectionInvite roomSection = iota
	sectionFavourite
	sectionNormal
	sectionLowPriority
)

type roomEntry struct {
	summary chat.RoomSummary
	section roomSection

	// Fuzzy match state, meaningful only while the filter is active.
	score     int
	positions []int
}

// RoomList is the left pane: the filtered, sectioned room list with a
// stable selection.
type RoomList struct {
	theme Theme

	// Filter narrows the list by fuzzy name match.
	Filter LineInput

	mode    ListMode
	all     []chat.RoomSummary
	entries []roomEntry

	selectedID ref.RoomID
	offset     int

	width  int
	height int
}

// NewRoomList returns an empty list in ListRooms mode.
func NewRoomList(theme Theme) RoomList {
	return RoomList{
		theme:  theme,
		Filter: LineInput{Prompt: "/"},
	}
}

// SetSize sets the pane dimensions.
func (l *RoomList) SetSize(width, height int) {
	l.width = width
	l.height = height
}

// Mode returns the current list mode.
func (l *RoomList) Mode() ListMode {
	return l.mode
}

// SetMode switches the list mode and rebuilds.
func (l *RoomList) SetMode(mode ListMode) {
	l.mode = mode
	l.rebuild()
}

// SetRooms replaces the backing summaries and rebuilds. Summaries are
// expected in the store's order, newest activity first.
func (l *RoomList) SetRooms(summaries []chat.RoomSummary) {
	l.all = summaries
	l.rebuild()
}

// Refilter rebuilds after a filter edit.
func (l *RoomList) Refilter() {
	l.rebuild()
}

func (l *RoomList) rebuild() {
	l.entries = l.entries[:0]
	pattern := l.Filter.Value

	for _, summary := range l.all {
		if !l.modeIncludes(summary) {
			continue
		}
		entry := roomEntry{summary: summary, section: sectionFor(summary)}
		if pattern != "" {
			match := FuzzyMatch(pattern, summary.Name)
			if match.Score == 0 {
				continue
			}
			entry.score = match.Score
			entry.positions = match.Positions
		}
		l.entries = append(l.entries, entry)
	}

	if pattern != "" {
		// Best match first; the builder order breaks ties.
		slices.SortStableFunc(l.entries, func(a, b roomEntry) int {
			return b.score - a.score
		})
	} else {
		slices.SortStableFunc(l.entries, func(a, b roomEntry) int {
			return int(a.section) - int(b.section)
		})
	}

	// Keep the selection on the same room when it survived the rebuild,
	// else snap to the top.
	if l.indexOf(l.selectedID) < 0 {
		if len(l.entries) > 0 {
			l.selectedID = l.entries[0].summary.RoomID
		} else {
			l.selectedID = ref.RoomID{}
		}
	}
}

func (l *RoomList) modeIncludes(summary chat.RoomSummary) bool {
	if summary.Membership == chat.MembershipLeft {
		return false
	}
	switch l.mode {
	case ListDirects:
		return summary.IsDirect && !summary.IsSpace
	case ListSpaces:
		return summary.IsSpace
	default:
		return !summary.IsSpace
	}
}

func sectionFor(summary chat.RoomSummary) roomSection {
	if summary.Membership == chat.MembershipInvited {
		return sectionInvite
	}
	if slices.Contains(summary.Tags, messaging.TagFavourite) {
		return sectionFavourite
	}
	if slices.Contains(summary.Tags, messaging.TagLowPriority) {
		return sectionLowPriority
	}
	return sectionNormal
}

func (l *RoomList) indexOf(roomID ref.RoomID) int {
	for i, entry := range l.entries {
		if entry.summary.RoomID == roomID {
			return i
		}
	}
	return -1
}

// Selected returns the selected room's summary.
func (l *RoomList) Selected() (chat.RoomSummary, bool) {
	i := l.indexOf(l.selectedID)
	if i < 0 {
		return chat.RoomSummary{}, false
	}
	return l.entries[i].summary, true
}

// Select moves the selection to roomID if it is visible.
func (l *RoomList) Select(roomID ref.RoomID) {
	if l.indexOf(roomID) >= 0 {
		l.selectedID = roomID
	}
}

// Len returns the number of visible rooms.
func (l *RoomList) Len() int {
	return len(l.entries)
}

func (l *RoomList) moveTo(i int) {
	if len(l.entries) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(l.entries) {
		i = len(l.entries) - 1
	}
	l.selectedID = l.entries[i].summary.RoomID
}

// MoveUp moves the selection one row up.
func (l *RoomList) MoveUp() { l.moveTo(l.indexOf(l.selectedID) - 1) }

// MoveDown moves the selection one row down.
func (l *RoomList) MoveDown() { l.moveTo(l.indexOf(l.selectedID) + 1) }

// Home selects the first room.
func (l *RoomList) Home() { l.moveTo(0) }

// End selects the last room.
func (l *RoomList) End() { l.moveTo(len(l.entries) - 1) }

// PageUp moves the selection up by a pane's worth of rows.
func (l *RoomList) PageUp() { l.moveTo(l.indexOf(l.selectedID) - l.rowCount()) }

// PageDown moves the selection down by a pane's worth of rows.
func (l *RoomList) PageDown() { l.moveTo(l.indexOf(l.selectedID) + l.rowCount()) }

// NextUnread selects the next room with unread activity, scanning
// forward from the selection and wrapping. Highlighted rooms count.
// Reports whether one was found.
func (l *RoomList) NextUnread() bool {
	if len(l.entries) == 0 {
		return false
	}
	start := l.indexOf(l.selectedID)
	for step := 1; step <= len(l.entries); step++ {
		entry := l.entries[(start+step+len(l.entries))%len(l.entries)]
		if entry.summary.Unread > 0 || entry.summary.Highlights > 0 {
			l.selectedID = entry.summary.RoomID
			return true
		}
	}
	return false
}

// filterVisible reports whether the filter line takes a row: while it
// is being edited, and after a confirm while a filter still applies.
func (l *RoomList) filterVisible() bool {
	return l.Filter.Active || l.Filter.Value != ""
}

// rowCount is the number of room rows the pane can show, after the
// filter line when it is visible.
func (l *RoomList) rowCount() int {
	rows := l.height
	if l.filterVisible() {
		rows--
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

// View renders the pane at its configured size.
func (l *RoomList) View(focused bool) string {
	rows := l.rowCount()

	// Keep the selection inside the scroll window.
	selected := l.indexOf(l.selectedID)
	if selected >= 0 {
		if selected < l.offset {
			l.offset = selected
		}
		if selected >= l.offset+rows {
			l.offset = selected - rows + 1
		}
	}
	if l.offset > len(l.entries)-rows {
		l.offset = len(l.entries) - rows
	}
	if l.offset < 0 {
		l.offset = 0
	}

	lines := make([]string, 0, l.height)
	if l.filterVisible() {
		lines = append(lines, ansi.Truncate(l.Filter.View(l.theme), l.width, ""))
	}
	for i := l.offset; i < len(l.entries) && len(lines) < l.height; i++ {
		lines = append(lines, l.renderRow(l.entries[i], i == selected, focused))
	}
	for len(lines) < l.height {
		lines = append(lines, strings.Repeat(" ", l.width))
	}
	return strings.Join(lines, "\n")
}

func (l *RoomList) renderRow(entry roomEntry, selected, focused bool) string {
	summary := entry.summary

	marker := " "
	markerStyle := lipgloss.NewStyle().Foreground(l.theme.FaintText)
	switch {
	case summary.Membership == chat.MembershipInvited:
		marker = "+"
		markerStyle = markerStyle.Foreground(l.theme.InviteColor)
	case summary.Highlights > 0:
		marker = "!"
		markerStyle = markerStyle.Foreground(l.theme.HighlightColor)
	case summary.Unread > 0:
		marker = "•"
		markerStyle = markerStyle.Foreground(l.theme.UnreadColor)
	}

	badge := ""
	if summary.Unread > 0 {
		if summary.Unread > 99 {
			badge = " 99+"
		} else {
			badge = fmt.Sprintf(" %d", summary.Unread)
		}
	}

	prefix := ""
	if l.mode == ListRooms && summary.IsDirect {
		prefix = "@"
	}

	nameStyle := lipgloss.NewStyle().Foreground(l.theme.NormalText)
	switch {
	case summary.Membership == chat.MembershipInvited:
		nameStyle = nameStyle.Foreground(l.theme.InviteColor)
	case entry.section == sectionLowPriority:
		nameStyle = nameStyle.Foreground(l.theme.FaintText)
	case summary.Unread > 0 || summary.Highlights > 0:
		nameStyle = nameStyle.Bold(true)
	}

	nameWidth := l.width - 2 - len(prefix) - lipgloss.Width(badge)
	if nameWidth < 1 {
		nameWidth = 1
	}
	name := l.renderName(summary.Name, entry.positions, nameStyle)
	name = ansi.Truncate(name, nameWidth, "…")

	pad := nameWidth - lipgloss.Width(name)
	if pad < 0 {
		pad = 0
	}
	row := markerStyle.Render(marker) + " " + nameStyle.Render(prefix) + name +
		strings.Repeat(" ", pad) +
		lipgloss.NewStyle().Foreground(l.theme.UnreadColor).Render(badge)

	if selected {
		style := lipgloss.NewStyle().Background(l.theme.SelectedBackground)
		if focused {
			style = style.Bold(true)
		}
		// Restyle the whole row so the background covers it end to end.
		plain := ansi.Strip(row)
		return style.Foreground(l.theme.SelectedForeground).
			Width(l.width).Render(plain)
	}
	return row
}

// renderName styles a room name, underlining fuzzy match positions.
func (l *RoomList) renderName(name string, positions []int, base lipgloss.Style) string {
	if len(positions) == 0 {
		return base.Render(name)
	}
	matched := make(map[int]bool, len(positions))
	for _, p := range positions {
		matched[p] = true
	}
	hit := base.Underline(true).Foreground(l.theme.HighlightColor)
	var out strings.Builder
	for i, r := range []rune(name) {
		if matched[i] {
			out.WriteString(hit.Render(string(r)))
		} else {
			out.WriteString(base.Render(string(r)))
		}
	}
	return out.String()
}
