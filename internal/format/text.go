// Package format provides text helpers for terminal and markdown reports.
package format

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/spiffcs/prlens/internal/constants"
)

// ansiRegex matches ANSI escape sequences
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

const variationSelector = '\uFE0F'

// StripAnsi removes ANSI escape sequences from a string.
func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// glyph returns the byte length and column width of the visible glyph at
// the start of s. An emoji followed by U+FE0F renders as two columns.
func glyph(s string) (size, width int) {
	r, size := utf8.DecodeRuneInString(s)
	if r == variationSelector {
		return size, 0
	}
	if next, n := utf8.DecodeRuneInString(s[size:]); next == variationSelector {
		return size + n, 2
	}
	return size, runewidth.RuneWidth(r)
}

// DisplayWidth returns the visible width of a string in terminal columns,
// ignoring ANSI escape sequences.
func DisplayWidth(s string) int {
	plain := StripAnsi(s)
	width := 0
	for pos := 0; pos < len(plain); {
		size, w := glyph(plain[pos:])
		width += w
		pos += size
	}
	return width
}

// TruncateToWidth truncates a string to fit within maxWidth display columns
// and returns it with its visible width. Escape sequences are kept; when
// the cut string carried any, a reset follows the "..." suffix.
func TruncateToWidth(s string, maxWidth int) (string, int) {
	width := DisplayWidth(s)
	if width <= maxWidth {
		return s, width
	}

	target := max(maxWidth-constants.TruncationSuffixWidth, 0)
	matches := ansiRegex.FindAllStringIndex(s, -1)

	var b strings.Builder
	visible, pos, m := 0, 0, 0
	for pos < len(s) {
		if m < len(matches) && pos == matches[m][0] {
			b.WriteString(s[matches[m][0]:matches[m][1]])
			pos = matches[m][1]
			m++
			continue
		}
		size, w := glyph(s[pos:])
		if visible+w > target {
			break
		}
		b.WriteString(s[pos : pos+size])
		visible += w
		pos += size
	}

	b.WriteString("...")
	if len(matches) > 0 {
		b.WriteString("\033[0m")
	}
	return b.String(), max(maxWidth, constants.TruncationSuffixWidth)
}

// PadRight pads a string with spaces to reach the target visible width.
func PadRight(s string, visibleWidth, targetWidth int) string {
	if visibleWidth >= targetWidth {
		return s
	}
	return s + strings.Repeat(" ", targetWidth-visibleWidth)
}

// Cell truncates and pads s to exactly width columns.
func Cell(s string, width int) string {
	s, w := TruncateToWidth(s, width)
	return PadRight(s, w, width)
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
