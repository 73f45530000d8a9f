package core

// parser.go turns a pasted text block into records for a schema.
//
// Parsing is deliberately lenient: a line with fewer tokens than the schema's
// minimum is dropped instead of failing the submission. Dropped lines are
// reported in ParseResult.Skipped so callers can warn about them.

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// utf8BOM is prepended by some Windows editors when text is copied out of a file.
const utf8BOM = "\uFEFF"

// Parse splits text into records conforming to s.
//
// Lines may end in \n, \r\n or \r. When s.CaseNormalize is set the whole
// text is lower-cased once before splitting, so free-text fields of that
// domain are lower-cased too. Tokens are trimmed of surrounding whitespace;
// tokens beyond the schema's field count are ignored.
func Parse(text string, s Schema) ParseResult {
	text = string(sanitizeUTF8([]byte(text)))
	text = strings.TrimPrefix(text, utf8BOM)

	text = foldCase(s, text)

	var result ParseResult
	for i, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Lines++

		tokens := strings.Split(line, s.Delimiter)
		if len(tokens) < s.MinFields {
			result.Skipped = append(result.Skipped, SkippedLine{
				Line:   i + 1,
				Text:   line,
				Fields: len(tokens),
			})
			continue
		}

		values := make([]string, len(s.Fields))
		for j := range values {
			if j < len(tokens) {
				values[j] = strings.TrimSpace(tokens[j])
			}
		}
		result.Records = append(result.Records, Record{Values: values})
	}

	return result
}

// splitLines splits on any line-ending convention.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// foldCase lower-cases v for schemas that normalize case.
func foldCase(s Schema, v string) string {
	if !s.CaseNormalize {
		return v
	}
	return cases.Lower(language.Und).String(v)
}

// canonicalValues returns a stored record's values the way Parse would have
// produced them from its rendered line: trimmed, and case-folded for
// normalized schemas.
func canonicalValues(s Schema, r Record) []string {
	values := make([]string, len(r.Values))
	for i, v := range r.Values {
		values[i] = foldCase(s, strings.TrimSpace(v))
	}
	return values
}
