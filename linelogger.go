package serlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/serlog/internal/metrics"
	"libdb.so/serlog/serialline"
)

// RecordWriter is the interface for types that persist records. Records
// must be visible to readers of the underlying storage once WriteRecord
// returns.
type RecordWriter interface {
	WriteRecord(serialline.Record) error
}

// RecordWriterFunc is a function that implements RecordWriter.
type RecordWriterFunc func(serialline.Record) error

// WriteRecord implements RecordWriter.
func (f RecordWriterFunc) WriteRecord(rec serialline.Record) error {
	return f(rec)
}

// LineLogger reads lines from a device, echoes the non-empty ones to the
// console and persists them as timestamped records.
type LineLogger struct {
	// Console receives every non-empty line, unprefixed.
	Console io.Writer
	// Records receives a record for every non-empty line.
	Records RecordWriter
	// Clock returns the time records are stamped with. If nil, time.Now is
	// used.
	Clock func() time.Time
	// Logger is used for diagnostics. If nil, slog.Default is used.
	Logger *slog.Logger
	// Metrics is updated for every line. It may be nil.
	Metrics *metrics.Metrics
}

// Run reads lines from r until r fails or the context is canceled. A line is
// fully handled before the next one is read. Run returns nil if r reaches
// io.EOF, and ctx.Err() if the read failed because the context was canceled.
//
// Run does not interrupt a blocked read by itself: the caller must close r
// when the context is canceled.
func (l *LineLogger) Run(ctx context.Context, r io.Reader) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	br := bufio.NewReader(r)

	for ctx.Err() == nil {
		line, dropped, err := serialline.ReadLine(br)

		// A fragment cut short by an error is handled like a complete line.
		if err == nil || !line.IsEmpty() {
			if dropped > 0 {
				logger.Debug(
					"dropped invalid UTF-8 bytes from line",
					"dropped", dropped)
			}

			if err := l.handleLine(logger, line, dropped); err != nil {
				return err
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "failed to read line")
		}
	}

	return ctx.Err()
}

func (l *LineLogger) handleLine(logger *slog.Logger, line serialline.Line, dropped int) error {
	l.Metrics.LineRead(dropped)

	if line.IsEmpty() {
		logger.Debug("skipped empty line")
		l.Metrics.LineSkipped()
		return nil
	}

	logger.Debug("received line", "line", string(line))

	if _, err := fmt.Fprintln(l.Console, line); err != nil {
		return errors.Wrap(err, "failed to write line to console")
	}

	now := time.Now
	if l.Clock != nil {
		now = l.Clock
	}

	rec := serialline.NewRecord(now(), line)
	if err := l.Records.WriteRecord(rec); err != nil {
		return errors.Wrap(err, "failed to write record")
	}

	l.Metrics.RecordWritten(rec.Time)
	return nil
}
