// highlight.go: lexical highlighting of JSON text
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package jsonformat

import (
	devtools "github.com/agilira/devtools"
)

// Highlight returns style spans for the keys, strings, numbers and
// literals of text. It never fails: invalid input is tokenized as far as
// it goes and unknown bytes are skipped.
func Highlight(text string) []devtools.StyleSpan {
	var spans []devtools.StyleSpan
	n := len(text)
	for i := 0; i < n; {
		c := text[i]
		switch {
		case c == '"':
			end := scanString(text, i)
			class := devtools.StyleString
			if isKey(text, end) {
				class = devtools.StyleKey
			}
			spans = append(spans, devtools.StyleSpan{Start: i, End: end, Class: class})
			i = end
		case c == '-' || isDigit(c):
			end := scanNumber(text, i)
			if end > i+1 || isDigit(c) {
				spans = append(spans, devtools.StyleSpan{Start: i, End: end, Class: devtools.StyleNumber})
			}
			i = max(end, i+1)
		case c == 't' || c == 'f' || c == 'n':
			if lit := matchLiteral(text, i); lit > 0 {
				spans = append(spans, devtools.StyleSpan{Start: i, End: i + lit, Class: devtools.StyleLiteral})
				i += lit
				continue
			}
			i++
		default:
			i++
		}
	}
	return spans
}

// scanString returns the offset just past the closing quote of the string
// starting at start, or len(text) when it is unterminated.
func scanString(text string, start int) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		case '\n':
			return i
		}
	}
	return len(text)
}

// isKey reports whether the next non-blank byte after end is a colon.
func isKey(text string, end int) bool {
	for i := end; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}

func scanNumber(text string, start int) int {
	i := start
	if i < len(text) && text[i] == '-' {
		i++
	}
	for i < len(text) && isDigit(text[i]) {
		i++
	}
	if i < len(text) && text[i] == '.' {
		i++
		for i < len(text) && isDigit(text[i]) {
			i++
		}
	}
	if i < len(text) && (text[i] == 'e' || text[i] == 'E') {
		j := i + 1
		if j < len(text) && (text[j] == '+' || text[j] == '-') {
			j++
		}
		if j < len(text) && isDigit(text[j]) {
			i = j
			for i < len(text) && isDigit(text[i]) {
				i++
			}
		}
	}
	return i
}

var literals = []string{"true", "false", "null"}

func matchLiteral(text string, start int) int {
	for _, lit := range literals {
		end := start + len(lit)
		if end <= len(text) && text[start:end] == lit && (end == len(text) || !isIdentByte(text[end])) {
			if start > 0 && isIdentByte(text[start-1]) {
				return 0
			}
			return len(lit)
		}
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
