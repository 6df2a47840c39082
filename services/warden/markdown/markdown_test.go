// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse
// =============================================================================

func TestParse_BlockKinds(t *testing.T) {
	blocks := Parse("### Drift Analysis\n\nplain line\n- first\n- second\n#nospace")
	require.Len(t, blocks, 5)

	assert.Equal(t, BlockHeading, blocks[0].Kind)
	assert.Equal(t, 3, blocks[0].Level)
	assert.Equal(t, "Drift Analysis", blocks[0].PlainText())

	assert.Equal(t, BlockParagraph, blocks[1].Kind)
	assert.Equal(t, BlockListItem, blocks[2].Kind)
	assert.Equal(t, "second", blocks[3].PlainText())

	assert.Equal(t, BlockParagraph, blocks[4].Kind, "heading needs a space after #")
}

func TestParseInline(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Span
	}{
		{
			name: "plain",
			in:   "hello",
			want: []Span{{SpanText, "hello"}},
		},
		{
			name: "bold then text",
			in:   "**Status:** Drift Detected",
			want: []Span{{SpanBold, "Status:"}, {SpanText, " Drift Detected"}},
		},
		{
			name: "italic and code",
			in:   "use *care* with `ALTER TABLE`",
			want: []Span{
				{SpanText, "use "}, {SpanItalic, "care"}, {SpanText, " with "}, {SpanCode, "ALTER TABLE"},
			},
		},
		{
			name: "unclosed delimiters stay literal",
			in:   "2 * 3 and `tick",
			want: []Span{{SpanText, "2 * 3 and `tick"}},
		},
		{
			name: "empty pair stays literal",
			in:   "a `` b",
			want: []Span{{SpanText, "a `` b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInline(tt.in))
		})
	}
}

// =============================================================================
// Rendering
// =============================================================================

func TestRenderHTML(t *testing.T) {
	got := ToHTML("### Title\n- **a**\n- `b`\ntext *c*")
	want := "<h3>Title</h3><ul><li><strong>a</strong></li><li><code>b</code></li></ul><p>text <em>c</em></p>"
	assert.Equal(t, want, got)
}

func TestRenderHTML_EscapesInput(t *testing.T) {
	got := ToHTML("<script>alert(1)</script> **<b>**")
	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;script&gt;")
	assert.Contains(t, got, "<strong>&lt;b&gt;</strong>")
}

func TestRenderHTML_TrailingList(t *testing.T) {
	assert.Equal(t, "<ul><li>x</li></ul>", ToHTML("- x"))
	assert.Equal(t, "", ToHTML("\n\n"))
}

type bracketStyler struct{}

func (bracketStyler) Heading(s string) string { return "[H " + s + "]" }
func (bracketStyler) Bold(s string) string    { return "[B " + s + "]" }
func (bracketStyler) Italic(s string) string  { return "[I " + s + "]" }
func (bracketStyler) Code(s string) string    { return "[C " + s + "]" }

func TestRenderText(t *testing.T) {
	blocks := Parse("### Report\n- **Status:** ok\nrun `x`")

	assert.Equal(t, "Report\n  • Status: ok\nrun x", RenderText(blocks, nil))
	assert.Equal(t, "[H Report]\n  • [B Status:] ok\nrun [C x]", RenderText(blocks, bracketStyler{}))
}

// =============================================================================
// ExtractCode
// =============================================================================

func TestExtractCode_WithBlock(t *testing.T) {
	text := "### Drift Analysis\nLooks legitimate.\n\n```sqlx\nconfig { type: \"incremental\" }\nSELECT 1\n```\nTrailing note."
	p := ExtractCode(text)

	assert.True(t, p.HasCode)
	assert.Equal(t, "config { type: \"incremental\" }\nSELECT 1", p.Code)
	assert.Equal(t, "### Drift Analysis\nLooks legitimate.\n\n\nTrailing note.", p.Analysis)
}

func TestExtractCode_NoBlock(t *testing.T) {
	text := "\n### Analysis\nNo code here.\n"
	p := ExtractCode(text)
	assert.False(t, p.HasCode)
	assert.Equal(t, text, p.Analysis)
	assert.Equal(t, NoCodePlaceholder, p.Code)
}

func TestExtractCode_FirstBlockOnly(t *testing.T) {
	p := ExtractCode("a\n```sql\nONE\n```\nb\n```\nTWO\n```")
	assert.Equal(t, "ONE", p.Code)
	assert.True(t, strings.Contains(p.Analysis, "TWO"))
}

func TestExtractCode_UnterminatedBlock(t *testing.T) {
	p := ExtractCode("intro\n```sqlx\nSELECT 1")
	assert.False(t, p.HasCode)
	assert.Equal(t, NoCodePlaceholder, p.Code)
}
