// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/parley-chat/parley/messaging"
)

// composeMarkdown converts composer input to the HTML formatted body.
// The configuration never changes and goldmark instances are safe to
// share; parsing state is per call.
var composeMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// ComposeMessage builds outgoing message content from composer text.
// Text that markdown renders as anything beyond a single plain
// paragraph goes out with an HTML formatted body; the raw text is
// always the plain-text fallback.
func ComposeMessage(text string) messaging.MessageContent {
	var buf bytes.Buffer
	if err := composeMarkdown.Convert([]byte(text), &buf); err != nil {
		return messaging.NewTextMessage(text)
	}
	rendered := strings.TrimSpace(buf.String())
	if plainParagraph(rendered, text) {
		return messaging.NewTextMessage(text)
	}
	return messaging.NewFormattedMessage(text, rendered)
}

// plainParagraph reports whether rendered is the source wrapped in a
// single paragraph with nothing but entity escaping, meaning the
// markdown pass added no structure.
func plainParagraph(rendered, source string) bool {
	inner, ok := strings.CutPrefix(rendered, "<p>")
	if !ok {
		return false
	}
	inner, ok = strings.CutSuffix(inner, "</p>")
	if !ok {
		return false
	}
	if strings.Contains(inner, "<") {
		return false
	}
	return html.UnescapeString(inner) == strings.TrimSpace(source)
}
