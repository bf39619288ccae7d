// Package sanitize turns raw terminal output into text that is safe to show
// verbatim and to append to a transcript file.
//
// Each call is independent. An escape sequence split across two reads is not
// reassembled, so the tail of a split sequence may survive as plain text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ESC ] ... terminated by BEL or ESC \ (window titles, hyperlinks, cwd hints).
	oscPattern = regexp.MustCompile(`\x1b\].*?(?:\x07|\x1b\\)`)

	// ESC + single byte, or CSI: ESC [ params intermediates final.
	escPattern = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

	lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Sanitize decodes raw as UTF-8, strips OSC and ANSI escape sequences, drops
// non-printable characters other than newline, tab and carriage return, and
// normalizes CRLF and lone CR to LF.
func Sanitize(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	text = oscPattern.ReplaceAllString(text, "")
	text = escPattern.ReplaceAllString(text, "")
	text = strings.Map(keepPrintable, text)
	return lineEndings.Replace(text)
}

func keepPrintable(r rune) rune {
	switch r {
	case '\n', '\t', '\r':
		return r
	}
	if unicode.IsPrint(r) {
		return r
	}
	return -1
}
