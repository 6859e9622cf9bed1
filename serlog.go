// Package serlog implements a daemon that logs the lines printed by a serial
// device, such as an Arduino, to the console and to a log file.
package serlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"libdb.so/serlog/internal/appendlog"
	"libdb.so/serlog/internal/metrics"
)

// ErrDeviceClosed is returned by Daemon.Run when the device stops sending
// data without the daemon being asked to stop.
var ErrDeviceClosed = errors.New("serial device closed the connection")

// Daemon is the main serlog daemon.
type Daemon struct {
	cfg     *Config
	logger  *slog.Logger
	console io.Writer
	clock   func() time.Time
	metrics *metrics.Metrics
}

// Option is an option for NewDaemon.
type Option func(*Daemon)

// WithConsole sets the writer lines are echoed to. It defaults to os.Stdout.
func WithConsole(w io.Writer) Option {
	return func(d *Daemon) { d.console = w }
}

// WithClock sets the clock records are stamped with. It defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(d *Daemon) { d.clock = clock }
}

// WithMetrics sets the metrics updated by the daemon. If not set, metrics
// are only created when Config.MetricsAddr is set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// NewDaemon creates a new serlog daemon.
func NewDaemon(cfg *Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		console: os.Stdout,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.metrics == nil && cfg.MetricsAddr != "" {
		d.metrics = metrics.New(cfg.Device)
	}

	return d, nil
}

// Run starts the daemon. It blocks until the given context is canceled or
// the serial connection fails. The serial port and the log file are closed
// before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	out, err := appendlog.Open(d.cfg.Output, appendlog.Options{Sync: d.cfg.Sync})
	if err != nil {
		return err
	}
	defer out.Close()

	size, err := out.Size()
	if err != nil {
		return errors.Wrap(err, "failed to stat log file")
	}

	d.logger.Debug(
		"opened log file",
		"path", out.Name(),
		"size", size,
		"sync", d.cfg.Sync)

	if size > 0 {
		d.checkLastRecord(out)
	}

	port, err := serial.Open(d.cfg.Device, &serial.Mode{
		BaudRate: d.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open serial port")
	}
	defer port.Close()

	d.logger.Debug(
		"opened serial port",
		"device", d.cfg.Device,
		"baud", d.cfg.Baud)

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("closing serial port")
		if err := port.Close(); err != nil {
			return errors.Wrap(err, "failed to close serial port")
		}
		return ctx.Err()
	})

	errg.Go(func() error {
		lines := LineLogger{
			Console: d.console,
			Records: out,
			Clock:   d.clock,
			Logger:  d.logger,
			Metrics: d.metrics,
		}
		if err := lines.Run(ctx, port); err != nil {
			return err
		}
		return ErrDeviceClosed
	})

	if d.metrics != nil && d.cfg.MetricsAddr != "" {
		errg.Go(func() error {
			d.logger.Debug("serving metrics", "addr", d.cfg.MetricsAddr)
			return d.metrics.Serve(ctx, d.cfg.MetricsAddr)
		})
	}

	return errg.Wait()
}

// checkLastRecord warns about an existing log file that does not end with a
// record, or whose last record lies in the future.
func (d *Daemon) checkLastRecord(out *appendlog.File) {
	rec, ok, err := out.LastRecord()
	switch {
	case err != nil:
		d.logger.Warn(
			"log file does not end with a valid record",
			"path", out.Name(),
			"error", err)
	case !ok:
		// only blank lines so far
	case rec.Time.After(d.clock()):
		d.logger.Warn(
			"last record in log file is newer than the clock",
			"path", out.Name(),
			"last_record", rec.Time)
	default:
		d.logger.Debug(
			"appending after existing record",
			"last_record", rec.Time)
	}
}
