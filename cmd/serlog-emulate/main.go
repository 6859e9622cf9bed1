// Command serlog-emulate emulates a microcontroller printing lines over a
// serial port. It opens a pseudo-terminal and prints the path of its device,
// which serlog can then be pointed at.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/spf13/pflag"
)

var (
	interval = time.Second
	noise    = 0
	verbose  = false
)

func init() {
	pflag.DurationVarP(&interval, "interval", "i", interval, "interval between lines")
	pflag.IntVar(&noise, "noise", noise, "prefix every nth line with an invalid UTF-8 byte (0 disables)")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	master, slave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("failed to open pseudo-terminal: %w", err)
	}
	defer master.Close()
	defer slave.Close()

	// The path goes to stdout so that it can be captured by scripts.
	fmt.Println(slave.Name())
	slog.Info("emulating device", "device", slave.Name(), "interval", interval)

	dev := Device{W: master, Noise: noise}

	if err := dev.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("device failed: %w", err)
	}

	return nil
}

// Device prints a people counter the way the firmware of the counting
// sensor does.
type Device struct {
	W io.Writer
	// Noise, if positive, prefixes every Noise-th line with an invalid byte.
	Noise int

	count int
	lines int
}

// Run prints a line every interval until the context is canceled.
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.WriteLine(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteLine writes the next line, terminated by CRLF.
func (d *Device) WriteLine() error {
	d.lines++

	var prefix string
	if d.Noise > 0 && d.lines%d.Noise == 0 {
		prefix = "\xff"
	}

	line := fmt.Sprintf("%sCurrent People Count: %d\r\n", prefix, d.count)
	slog.Debug("writing line", "line", line)

	if _, err := io.WriteString(d.W, line); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	// People walk in and out; keep the count moving without going negative.
	if d.lines%3 == 0 && d.count > 0 {
		d.count--
	} else {
		d.count++
	}

	return nil
}
