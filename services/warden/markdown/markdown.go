// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package markdown implements the small markdown subset produced by the
// analysis backend: headings, "- " list items, paragraphs, and the inline
// spans **bold**, *italic* and `code`.
//
// Parsing is line oriented. Every non-empty line becomes exactly one block;
// there is no nesting and no multi-line paragraph folding. Text is never
// trusted: RenderHTML escapes every character it emits from the input.
package markdown

import (
	"html"
	"regexp"
	"strings"
)

// =============================================================================
// AST
// =============================================================================

// BlockKind identifies a block-level element.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
)

// SpanKind identifies an inline element.
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanBold
	SpanItalic
	SpanCode
)

// Span is a run of inline text with a single style.
type Span struct {
	Kind SpanKind
	Text string
}

// Block is one line of the document.
type Block struct {
	Kind BlockKind
	// Level is the heading depth (1-6). Zero for other kinds.
	Level int
	Spans []Span
}

// PlainText returns the block's text without markup.
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// =============================================================================
// Parsing
// =============================================================================

// Parse splits text into blocks.
func Parse(text string) []Block {
	var blocks []Block
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if level, rest, ok := heading(line); ok {
			blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Spans: ParseInline(rest)})
			continue
		}
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			blocks = append(blocks, Block{Kind: BlockListItem, Spans: ParseInline(rest)})
			continue
		}
		blocks = append(blocks, Block{Kind: BlockParagraph, Spans: ParseInline(line)})
	}
	return blocks
}

func heading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level+1:]), true
}

// ParseInline splits a line into styled spans.
//
// Delimiters are matched left to right with the nearest closing delimiter.
// An opening delimiter with no closing partner, or an empty pair, is kept
// as literal text.
func ParseInline(line string) []Span {
	var spans []Span
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			spans = append(spans, Span{Kind: SpanText, Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(line); {
		var (
			delim string
			kind  SpanKind
		)
		switch {
		case strings.HasPrefix(line[i:], "**"):
			delim, kind = "**", SpanBold
		case line[i] == '*':
			delim, kind = "*", SpanItalic
		case line[i] == '`':
			delim, kind = "`", SpanCode
		default:
			text.WriteByte(line[i])
			i++
			continue
		}

		start := i + len(delim)
		end := strings.Index(line[start:], delim)
		if end <= 0 {
			text.WriteString(delim)
			i = start
			continue
		}
		flush()
		spans = append(spans, Span{Kind: kind, Text: line[start : start+end]})
		i = start + end + len(delim)
	}
	flush()
	return spans
}

// =============================================================================
// Rendering
// =============================================================================

// RenderHTML renders blocks as an HTML fragment. Consecutive list items are
// grouped into one <ul>. Headings are emitted as <h3> regardless of depth.
func RenderHTML(blocks []Block) string {
	var sb strings.Builder
	inList := false
	for _, b := range blocks {
		if b.Kind != BlockListItem && inList {
			sb.WriteString("</ul>")
			inList = false
		}
		switch b.Kind {
		case BlockHeading:
			sb.WriteString("<h3>")
			renderSpansHTML(&sb, b.Spans)
			sb.WriteString("</h3>")
		case BlockListItem:
			if !inList {
				sb.WriteString("<ul>")
				inList = true
			}
			sb.WriteString("<li>")
			renderSpansHTML(&sb, b.Spans)
			sb.WriteString("</li>")
		default:
			sb.WriteString("<p>")
			renderSpansHTML(&sb, b.Spans)
			sb.WriteString("</p>")
		}
	}
	if inList {
		sb.WriteString("</ul>")
	}
	return sb.String()
}

func renderSpansHTML(sb *strings.Builder, spans []Span) {
	for _, s := range spans {
		escaped := html.EscapeString(s.Text)
		switch s.Kind {
		case SpanBold:
			sb.WriteString("<strong>" + escaped + "</strong>")
		case SpanItalic:
			sb.WriteString("<em>" + escaped + "</em>")
		case SpanCode:
			sb.WriteString("<code>" + escaped + "</code>")
		default:
			sb.WriteString(escaped)
		}
	}
}

// ToHTML is Parse followed by RenderHTML.
func ToHTML(text string) string {
	return RenderHTML(Parse(text))
}

// Styler decorates spans for terminal output.
type Styler interface {
	Heading(s string) string
	Bold(s string) string
	Italic(s string) string
	Code(s string) string
}

// PlainStyler leaves text undecorated.
type PlainStyler struct{}

func (PlainStyler) Heading(s string) string { return s }
func (PlainStyler) Bold(s string) string    { return s }
func (PlainStyler) Italic(s string) string  { return s }
func (PlainStyler) Code(s string) string    { return s }

// RenderText renders blocks for a terminal, one block per line.
// A nil styler is treated as PlainStyler.
func RenderText(blocks []Block, styler Styler) string {
	if styler == nil {
		styler = PlainStyler{}
	}
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		var sb strings.Builder
		for _, s := range b.Spans {
			switch s.Kind {
			case SpanBold:
				sb.WriteString(styler.Bold(s.Text))
			case SpanItalic:
				sb.WriteString(styler.Italic(s.Text))
			case SpanCode:
				sb.WriteString(styler.Code(s.Text))
			default:
				sb.WriteString(s.Text)
			}
		}
		switch b.Kind {
		case BlockHeading:
			lines = append(lines, styler.Heading(b.PlainText()))
		case BlockListItem:
			lines = append(lines, "  • "+sb.String())
		default:
			lines = append(lines, sb.String())
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Code Extraction
// =============================================================================

// NoCodePlaceholder is returned as the code when a response has no fenced block.
const NoCodePlaceholder = "-- No SQLX code block generated"

var fencedBlock = regexp.MustCompile("(?s)```[\\w+-]*\\n(.*?)\\n```")

// Proposal is an AI response split into prose and code.
type Proposal struct {
	Analysis string
	Code     string
	// HasCode is false when the placeholder was substituted.
	HasCode bool
}

// ExtractCode splits text at its first fenced code block.
//
// # Description
//
// The block opens with three backticks, an optional language tag and a
// newline, and closes at the next newline followed by three backticks.
// Analysis is the text with that block removed, trimmed. Without a block
// the input is returned unchanged as the analysis and Code is
// NoCodePlaceholder.
//
// # Examples
//
//	p := ExtractCode("### Analysis\nok\n```sqlx\nSELECT 1\n```")
//	// p.Analysis == "### Analysis\nok", p.Code == "SELECT 1"
func ExtractCode(text string) Proposal {
	loc := fencedBlock.FindStringSubmatchIndex(text)
	if loc == nil {
		return Proposal{Analysis: text, Code: NoCodePlaceholder}
	}
	return Proposal{
		Analysis: strings.TrimSpace(text[:loc[0]] + text[loc[1]:]),
		Code:     text[loc[2]:loc[3]],
		HasCode:  true,
	}
}
