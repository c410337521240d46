// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the model for display in the
// status bar.
type logRecordMsg struct {
	// Summary is the one-line "message (key=value, ...)" form.
	Summary string
	// Level styles the notice (warn vs error).
	Level slog.Level
}

// LogHandler is a slog.Handler that forwards records into the running
// bubbletea program so warnings and errors surface in the status bar
// while the TUI owns the terminal. Records below the configured level,
// and records arriving before SetProgram, are dropped.
//
// Handlers derived through WithAttrs and WithGroup share the program
// pointer, so one SetProgram call covers all of them. File logging is
// not this handler's job; the binary fans out to a JSON handler for
// that.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

// NewLogHandler returns a handler delivering records at or above level.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram connects the handler to the running program. Safe from any
// goroutine, and effective for every derived handler.
func (h *LogHandler) SetProgram(program *tea.Program) {
	h.program.Store(program)
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle summarizes the record and sends it into the program.
func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := h.program.Load()
	if program == nil {
		return nil
	}

	var parts []string
	for _, attr := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
		return true
	})

	summary := record.Message
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}

	program.Send(logRecordMsg{Summary: summary, Level: record.Level})
	return nil
}

// WithAttrs implements slog.Handler. The derived handler shares the
// program pointer.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		level:   h.level,
		program: h.program,
		attrs:   append(slices.Clone(h.attrs), attrs...),
		groups:  slices.Clone(h.groups),
	}
}

// WithGroup implements slog.Handler. The derived handler shares the
// program pointer.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{
		level:   h.level,
		program: h.program,
		attrs:   slices.Clone(h.attrs),
		groups:  append(slices.Clone(h.groups), name),
	}
}
