// Package serialline implements the line format spoken by the serial device
// and the record format written to the log file.
package serialline

import (
	"bufio"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the layout of the timestamp prefixing every record.
const TimestampLayout = "2006-01-02 15:04:05"

// Separator separates the timestamp from the line in a record.
const Separator = " -> "

// Delimiter terminates a line sent by the device. A preceding '\r' is
// removed by Decode along with any other surrounding whitespace.
const Delimiter = '\n'

// Line is a single decoded line received from the device. It is always valid
// UTF-8 and never has leading or trailing whitespace.
type Line string

// IsEmpty returns true if the line carries no text and should be discarded.
func (l Line) IsEmpty() bool {
	return l == ""
}

// Decode decodes the raw bytes of a line. Invalid UTF-8 sequences are dropped
// rather than rejected, and surrounding whitespace is trimmed. The number of
// bytes dropped is returned alongside the line.
func Decode(b []byte) (Line, int) {
	var dropped int
	if !utf8.Valid(b) {
		valid := strings.ToValidUTF8(string(b), "")
		dropped = len(b) - len(valid)
		return Line(strings.TrimSpace(valid)), dropped
	}
	return Line(strings.TrimSpace(string(b))), dropped
}

// ReadLine reads a single line from the given reader. It blocks until the
// delimiter is read or the reader fails. If the reader fails after some bytes
// were read, those bytes are decoded and returned together with the error.
func ReadLine(r *bufio.Reader) (Line, int, error) {
	b, err := r.ReadBytes(Delimiter)
	if len(b) == 0 {
		return "", 0, err
	}
	line, dropped := Decode(b)
	return line, dropped, err
}

// Record is a line stamped with the local wall-clock time it was received
// at. It is the unit persisted in the log file.
type Record struct {
	Time time.Time
	Line Line
}

// NewRecord creates a new record for the given line at the given time.
func NewRecord(t time.Time, line Line) Record {
	return Record{Time: t, Line: line}
}

// AppendTo appends the encoded record, including the trailing newline, to
// the given buffer.
func (r Record) AppendTo(b []byte) []byte {
	b = r.Time.AppendFormat(b, TimestampLayout)
	b = append(b, Separator...)
	b = append(b, r.Line...)
	b = append(b, '\n')
	return b
}

// String returns the encoded record, including the trailing newline.
func (r Record) String() string {
	return string(r.AppendTo(make([]byte, 0, len(TimestampLayout)+len(Separator)+len(r.Line)+1)))
}

// ParseRecord parses a single encoded record. The trailing newline is
// optional. The timestamp is interpreted in the local time zone.
func ParseRecord(s string) (Record, error) {
	s = strings.TrimSuffix(s, "\n")

	ts, line, ok := strings.Cut(s, Separator)
	if !ok {
		return Record{}, fmt.Errorf("missing separator %q", Separator)
	}

	t, err := time.ParseInLocation(TimestampLayout, ts, time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	return Record{Time: t, Line: Line(line)}, nil
}
