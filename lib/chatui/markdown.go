// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The goldmark parser is configured once and shared. Parsing allocates
// per-call state through Parse(reader), so sharing the parser is safe.
var (
	messageParser     goldmark.Markdown
	messageParserOnce sync.Once
)

func getMessageParser() goldmark.Markdown {
	messageParserOnce.Do(func() {
		messageParser = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return messageParser
}

// wrapBreakpoints are the characters ansi.Wrap may break a line at.
const wrapBreakpoints = " ,.;-+|"

// renderMarkdown renders a message body as styled terminal text wrapped
// to width. Soft line breaks become spaces so hard-wrapped source
// reflows at any width; code blocks, lists, and tables keep their
// structure.
func renderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := getMessageParser().Parser().Parse(text.NewReader(source))

	// Force the ANSI256 profile. Output always goes to the bubbletea
	// screen, and auto-detection would strip all color when there is no
	// TTY (tests, pipes). SetColorProfile is needed on top of the
	// termenv option because the renderer re-detects from the
	// environment unless a profile was set explicitly.
	lip := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lip.SetColorProfile(termenv.ANSI256)

	r := &messageRenderer{
		source: source,
		theme:  theme,
		width:  width,
		lip:    lip,
	}
	ast.Walk(document, r.walk)
	return strings.TrimRight(r.output.String(), "\n")
}

// messageRenderer walks a goldmark AST and accumulates styled terminal
// text. A direct ast.Walk fits better than goldmark's renderer
// interface here because paragraphs must collect their inline content
// first and word-wrap it as a unit when the block closes.
type messageRenderer struct {
	source []byte
	theme  Theme
	width  int
	lip    *lipgloss.Renderer

	output strings.Builder

	// inline collects styled fragments for the current paragraph,
	// heading, or list item until the block closes and flushes it.
	inline strings.Builder

	// Prefix state for nested containers (blockquotes, list bodies).
	prefixStack      []linePrefix
	prefix           string
	prefixWidth      int
	pendingBullet    string // replaces the prefix for the next line only
	listStack        []listLevel
	trailingNewlines int

	// Style depth counters; counters rather than booleans so nested
	// emphasis unwinds correctly.
	boldDepth   int
	italicDepth int
	strikeDepth int
}

type linePrefix struct {
	text  string
	width int
}

type listLevel struct {
	ordered bool
	counter int
	tight   bool
}

func (r *messageRenderer) style() lipgloss.Style {
	return r.lip.NewStyle()
}

// contentWidth is the wrap width after subtracting nesting prefixes,
// clamped so deep nesting cannot degenerate to single-column output.
func (r *messageRenderer) contentWidth() int {
	width := r.width - r.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (r *messageRenderer) pushPrefix(text string, width int) {
	r.prefixStack = append(r.prefixStack, linePrefix{text: text, width: width})
	r.prefix += text
	r.prefixWidth += width
}

func (r *messageRenderer) popPrefix() {
	if len(r.prefixStack) == 0 {
		return
	}
	top := r.prefixStack[len(r.prefixStack)-1]
	r.prefixStack = r.prefixStack[:len(r.prefixStack)-1]
	r.prefix = r.prefix[:len(r.prefix)-len(top.text)]
	r.prefixWidth -= top.width
}

func (r *messageRenderer) inTightList() bool {
	return len(r.listStack) > 0 && r.listStack[len(r.listStack)-1].tight
}

// emit appends to the output, tracking trailing newlines so the blank
// line helpers can tell how much vertical space already exists.
func (r *messageRenderer) emit(s string) {
	if s == "" {
		return
	}
	r.output.WriteString(s)

	trailing := 0
	allNewlines := true
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '\n' {
			allNewlines = false
			break
		}
		trailing++
	}
	if allNewlines {
		r.trailingNewlines += trailing
	} else {
		r.trailingNewlines = trailing
	}
}

func (r *messageRenderer) ensureNewline() {
	if r.trailingNewlines < 1 {
		r.emit("\n")
	}
}

func (r *messageRenderer) ensureBlankLine() {
	for r.trailingNewlines < 2 {
		r.emit("\n")
	}
}

// nextLinePrefix returns the prefix for the upcoming line. A pending
// bullet wins once and clears, so only the first line of a list item
// carries the bullet.
func (r *messageRenderer) nextLinePrefix() string {
	if r.pendingBullet != "" {
		bullet := r.pendingBullet
		r.pendingBullet = ""
		return bullet
	}
	return r.prefix
}

// applyPrefixes prepends the line prefix to every line of content.
func (r *messageRenderer) applyPrefixes(content string) string {
	lines := strings.Split(content, "\n")
	var out strings.Builder
	for i, line := range lines {
		if i == 0 {
			out.WriteString(r.nextLinePrefix())
		} else {
			out.WriteString(r.prefix)
		}
		out.WriteString(line)
		if i < len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}

// flushInline word-wraps the accumulated inline content and applies
// prefixes. Resets the inline buffer.
func (r *messageRenderer) flushInline() string {
	content := r.inline.String()
	r.inline.Reset()
	if content == "" {
		return ""
	}
	return r.applyPrefixes(ansi.Wrap(content, r.contentWidth(), wrapBreakpoints))
}

// styledText applies the current emphasis state to a fragment.
func (r *messageRenderer) styledText(content string) string {
	style := r.style().Foreground(r.theme.NormalText)
	if r.boldDepth > 0 {
		style = style.Bold(true)
	}
	if r.italicDepth > 0 {
		style = style.Italic(true)
	}
	if r.strikeDepth > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// renderInlineContent collects a node's children into a string without
// disturbing the caller's inline buffer or style depth.
func (r *messageRenderer) renderInlineContent(node ast.Node) string {
	savedInline := r.inline.String()
	savedBold, savedItalic, savedStrike := r.boldDepth, r.italicDepth, r.strikeDepth

	r.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, r.walk)
	}
	result := r.inline.String()

	r.inline.Reset()
	r.inline.WriteString(savedInline)
	r.boldDepth, r.italicDepth, r.strikeDepth = savedBold, savedItalic, savedStrike
	return result
}

// collectSegments joins a block node's line segments into one string.
func (r *messageRenderer) collectSegments(node ast.Node) string {
	var out strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out.Write(seg.Value(r.source))
	}
	return out.String()
}

func (r *messageRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			r.inline.Reset()
		} else if flushed := r.flushInline(); flushed != "" {
			r.emit(flushed)
			r.ensureNewline()
			if !r.inTightList() {
				r.ensureBlankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			r.inline.Reset()
		} else {
			r.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := node.(*ast.FencedCodeBlock)
			r.renderCodeLines(r.collectSegments(node), string(block.Language(r.source)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			r.renderCodeLines(r.collectSegments(node), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			r.pushPrefix(r.style().Foreground(r.theme.BorderColor).Render("│")+" ", 2)
		} else {
			r.popPrefix()
			r.ensureBlankLine()
		}

	case ast.KindList:
		if entering {
			list := node.(*ast.List)
			start := 0
			if list.IsOrdered() {
				start = list.Start
			}
			r.listStack = append(r.listStack, listLevel{
				ordered: list.IsOrdered(),
				counter: start,
				tight:   list.IsTight,
			})
		} else {
			if len(r.listStack) > 0 {
				r.listStack = r.listStack[:len(r.listStack)-1]
			}
			if !r.inTightList() {
				r.ensureBlankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			r.enterListItem()
		} else {
			r.popPrefix()
			if r.inTightList() {
				r.ensureNewline()
			} else {
				r.ensureBlankLine()
			}
		}

	case ast.KindThematicBreak:
		if entering {
			rule := r.style().Foreground(r.theme.BorderColor).
				Render(strings.Repeat("─", r.contentWidth()))
			r.ensureBlankLine()
			r.emit(r.applyPrefixes(rule))
			r.ensureNewline()
			r.ensureBlankLine()
		}

	case ast.KindHTMLBlock:
		if entering {
			stripped := strings.TrimSpace(stripHTMLTags(r.collectSegments(node)))
			if stripped != "" {
				faint := r.style().Foreground(r.theme.FaintText)
				r.emit(r.applyPrefixes(faint.Render(stripped)))
				r.ensureNewline()
				r.ensureBlankLine()
			}
			return ast.WalkSkipChildren, nil
		}

	// Inline nodes.
	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			r.inline.WriteString(r.styledText(string(textNode.Segment.Value(r.source))))
			if textNode.SoftLineBreak() {
				// Soft breaks become spaces so the paragraph reflows.
				r.inline.WriteString(" ")
			}
			if textNode.HardLineBreak() {
				r.inline.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			r.inline.WriteString(r.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		emphasis := node.(*ast.Emphasis)
		delta := 1
		if !entering {
			delta = -1
		}
		if emphasis.Level >= 2 {
			r.boldDepth += delta
		} else {
			r.italicDepth += delta
		}

	case ast.KindCodeSpan:
		if entering {
			r.renderCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			r.renderLink(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(r.source))
			r.inline.WriteString(r.style().Foreground(r.theme.LinkText).Render(url))
		}

	case ast.KindImage:
		if entering {
			r.renderImage(node.(*ast.Image))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			var html strings.Builder
			for i := 0; i < raw.Segments.Len(); i++ {
				seg := raw.Segments.At(i)
				html.Write(seg.Value(r.source))
			}
			if stripped := stripHTMLTags(html.String()); stripped != "" {
				r.inline.WriteString(r.style().Foreground(r.theme.FaintText).Render(stripped))
			}
		}

	// GFM extension nodes.
	case extast.KindStrikethrough:
		if entering {
			r.strikeDepth++
		} else {
			r.strikeDepth--
		}

	case extast.KindTable:
		if entering {
			r.renderTable(node.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				done := r.style().Foreground(r.theme.SelfColor)
				r.inline.WriteString(done.Render("[x]") + " ")
			} else {
				r.inline.WriteString(r.styledText("[ ] "))
			}
		}
	}

	return ast.WalkContinue, nil
}

func (r *messageRenderer) leaveHeading(heading *ast.Heading) {
	// Strip inline styling; the heading style replaces it wholesale.
	content := ansi.Strip(r.inline.String())
	r.inline.Reset()
	if content == "" {
		return
	}

	style := r.style().Bold(true).Foreground(r.theme.NormalText)
	if heading.Level <= 2 {
		style = style.Foreground(r.theme.HeaderForeground)
	}

	wrapped := ansi.Wrap(style.Render(content), r.contentWidth(), wrapBreakpoints)
	r.ensureBlankLine()
	r.emit(r.applyPrefixes(wrapped))
	r.ensureNewline()
	r.ensureBlankLine()
}

// renderCodeLines emits a code block line by line so each line carries
// the container prefix. Chroma highlights when the fence named a
// language; otherwise the block renders faint.
func (r *messageRenderer) renderCodeLines(code, language string) {
	rendered := ""
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err == nil {
			rendered = buffer.String()
		}
	}
	if rendered == "" {
		faint := r.style().Foreground(r.theme.FaintText)
		var lines []string
		for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
			lines = append(lines, faint.Render(line))
		}
		rendered = strings.Join(lines, "\n")
	}

	r.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
		r.emit(r.nextLinePrefix() + line)
		r.ensureNewline()
	}
	r.ensureBlankLine()
}

func (r *messageRenderer) enterListItem() {
	if len(r.listStack) == 0 {
		return
	}
	top := &r.listStack[len(r.listStack)-1]

	var bullet string
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.counter)
		top.counter++
	} else {
		bullet = "- "
	}

	bulletWidth := len(bullet) // bullets are ASCII, bytes == columns

	// The bullet replaces the whole prefix for the item's first line;
	// continuation lines indent under it.
	r.pendingBullet = r.prefix + bullet
	r.pushPrefix(strings.Repeat(" ", bulletWidth), bulletWidth)
}

func (r *messageRenderer) renderCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			code.Write(n.Segment.Value(r.source))
		case *ast.String:
			code.Write(n.Value)
		}
	}
	r.inline.WriteString(r.style().Foreground(r.theme.FaintText).Render(code.String()))
}

func (r *messageRenderer) renderLink(node *ast.Link) {
	// renderInlineContent already styled the link text; write it as is.
	display := r.renderInlineContent(node)
	url := string(node.Destination)

	r.inline.WriteString(display)
	if url != "" && url != ansi.Strip(display) {
		urlStyle := r.style().Foreground(r.theme.LinkText)
		r.inline.WriteString(" " + urlStyle.Render("("+url+")"))
	}
}

func (r *messageRenderer) renderImage(node *ast.Image) {
	alt := ansi.Strip(r.renderInlineContent(node))
	if alt == "" {
		alt = "image"
	}
	faint := r.style().Foreground(r.theme.FaintText)
	r.inline.WriteString(faint.Render("[" + alt + "]"))
	if url := string(node.Destination); url != "" {
		r.inline.WriteString(" " + r.style().Foreground(r.theme.LinkText).Render("("+url+")"))
	}
}

func (r *messageRenderer) renderTable(table *extast.Table) {
	alignments := table.Alignments

	var headerCells []string
	var bodyRows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			headerCells = r.collectTableRow(child)
		case extast.KindTableRow:
			bodyRows = append(bodyRows, r.collectTableRow(child))
		}
	}

	columns := len(headerCells)
	if columns == 0 && len(bodyRows) > 0 {
		columns = len(bodyRows[0])
	}
	if columns == 0 {
		return
	}

	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if i < columns {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	measure(headerCells)
	for _, row := range bodyRows {
		measure(row)
	}

	// Shrink proportionally when the table overflows the available
	// width, keeping at least 3 columns per cell.
	const separator = "  "
	total := len(separator) * (columns - 1)
	for _, w := range widths {
		total += w
	}
	if available := r.contentWidth(); total > available {
		usable := available - len(separator)*(columns-1)
		if usable < columns*3 {
			usable = columns * 3
		}
		for i := range widths {
			widths[i] = (widths[i] * usable) / total
			if widths[i] < 3 {
				widths[i] = 3
			}
		}
	}

	r.ensureBlankLine()

	if len(headerCells) > 0 {
		bold := r.style().Bold(true).Foreground(r.theme.NormalText)
		r.emit(r.nextLinePrefix() + r.formatTableRow(headerCells, widths, alignments, bold))
		r.ensureNewline()

		rules := make([]string, len(widths))
		for i, w := range widths {
			rules[i] = strings.Repeat("─", w)
		}
		border := r.style().Foreground(r.theme.BorderColor)
		r.emit(r.prefix + border.Render(strings.Join(rules, separator)))
		r.ensureNewline()
	}

	for _, row := range bodyRows {
		r.emit(r.prefix + r.formatTableRow(row, widths, alignments, r.style()))
		r.ensureNewline()
	}

	r.ensureBlankLine()
}

func (r *messageRenderer) collectTableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, r.renderInlineContent(cell))
		}
	}
	return cells
}

func (r *messageRenderer) formatTableRow(
	cells []string,
	widths []int,
	alignments []extast.Alignment,
	baseStyle lipgloss.Style,
) string {
	const separator = "  "
	parts := make([]string, 0, len(widths))
	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}

		visible := lipgloss.Width(cell)
		if visible > width {
			cell = ansi.Truncate(cell, width, "…")
			visible = lipgloss.Width(cell)
		}
		padding := width - visible
		if padding < 0 {
			padding = 0
		}

		var alignment extast.Alignment
		if i < len(alignments) {
			alignment = alignments[i]
		}
		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", padding) + cell
		case extast.AlignCenter:
			left := padding / 2
			cell = strings.Repeat(" ", left) + cell + strings.Repeat(" ", padding-left)
		default:
			cell += strings.Repeat(" ", padding)
		}
		parts = append(parts, cell)
	}
	return baseStyle.Render(strings.Join(parts, separator))
}

// stripHTMLTags drops everything between < and >, keeping text content.
func stripHTMLTags(html string) string {
	var out strings.Builder
	inTag := false
	for _, c := range html {
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			out.WriteRune(c)
		}
	}
	return out.String()
}
