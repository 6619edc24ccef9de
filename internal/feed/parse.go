package feed

import (
	"fmt"
	"strings"
)

const (
	delimiter = ','
	quote     = '"'
)

// Document is a parsed feed: the header row plus every admitted data row.
type Document struct {
	Headers []string
	Records []Record
}

// Record is one data row of a feed, addressed by the document's header row.
type Record struct {
	Headers []string
	Values  []string
}

// Get returns the value of the named column, or "" when the row has no such column.
func (r Record) Get(name string) string {
	for i, h := range r.Headers {
		if h == name && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// ParseLine splits a single line on commas. A double quote toggles quoted mode,
// in which commas are literal. Quotes are not escapable and are never emitted.
// The last field is always returned, even when empty.
func ParseLine(line string) []string {
	var (
		out      []string
		cur      strings.Builder
		inQuotes bool
	)

	for _, c := range line {
		switch {
		case c == quote:
			inQuotes = !inQuotes
		case c == delimiter && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}

	return append(out, cur.String())
}

// ParseDocument treats the first line as the header row and maps every
// following non-blank line onto it. Rows with fewer fields than headers are
// dropped; surplus fields are ignored.
func ParseDocument(text string) (Document, error) {
	lines := strings.Split(text, "\n")

	head := strings.TrimSpace(lines[0])
	if head == "" {
		return Document{}, ErrNoHeader
	}

	headers := ParseLine(head)
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	out := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		values := ParseLine(line)
		if len(values) < len(headers) {
			continue
		}

		out = append(out, Record{Headers: headers, Values: values[:len(headers)]})
	}

	return Document{Headers: headers, Records: out}, nil
}

// RequireColumns reports ErrMissingColumn for the first name absent from the header row.
func (d Document) RequireColumns(names ...string) error {
	for _, n := range names {
		found := false
		for _, h := range d.Headers {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
	}
	return nil
}
