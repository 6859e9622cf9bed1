package serlog

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is a bytes.Buffer that is safe for concurrent use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func TestNewDaemon_InvalidConfig(t *testing.T) {
	_, err := NewDaemon(&Config{Baud: DefaultBaud}, newTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestDaemon_OpenErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("SerialPort", func(t *testing.T) {
		d, err := NewDaemon(&Config{
			Device: filepath.Join(dir, "ttyNOPE"),
			Baud:   DefaultBaud,
			Output: filepath.Join(dir, "logs.txt"),
		}, newTestLogger(t))
		require.NoError(t, err)

		err = d.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open serial port")
	})

	t.Run("LogFile", func(t *testing.T) {
		d, err := NewDaemon(&Config{
			Device: "/dev/ttyUSB0",
			Baud:   DefaultBaud,
			Output: filepath.Join(dir, "missing", "logs.txt"),
		}, newTestLogger(t))
		require.NoError(t, err)

		err = d.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open log file")
	})
}

func TestDaemon_PseudoTerminal(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	output := filepath.Join(t.TempDir(), "logs.txt")
	existing := "2024-12-31 23:59:59 -> from a previous run\n"
	require.NoError(t, os.WriteFile(output, []byte(existing), 0644))

	var console lockedBuffer
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local)

	d, err := NewDaemon(&Config{
		Device: slave.Name(),
		Baud:   DefaultBaud,
		Output: output,
	}, newTestLogger(t), WithConsole(&console), WithClock(fixedClock(ts)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Give the daemon time to open and configure the port.
	time.Sleep(100 * time.Millisecond)

	_, err = master.Write([]byte("Sensor:23.5\r\n\r\n\xffCurrent People Count: 4\r\n"))
	require.NoError(t, err)

	want := existing +
		"2025-01-01 10:00:00 -> Sensor:23.5\n" +
		"2025-01-01 10:00:00 -> Current People Count: 4\n"

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(output)
		return err == nil && string(b) == want
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Sensor:23.5\nCurrent People Count: 4\n", console.String())

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for daemon to stop")
	}
}

func TestDaemon_ChecksLastRecord(t *testing.T) {
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{
			name:     "Valid",
			existing: "2025-01-01 09:00:00 -> Sensor:23.5\n",
			want:     `msg="appending after existing record"`,
		},
		{
			name:     "Invalid",
			existing: "2025-01-01 09:00:00 -> Sensor:23.5\ngarbage\n",
			want:     `level=WARN msg="log file does not end with a valid record"`,
		},
		{
			name:     "FromTheFuture",
			existing: "2025-01-02 09:00:00 -> Sensor:23.5\n",
			want:     `level=WARN msg="last record in log file is newer than the clock"`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			output := filepath.Join(dir, "logs.txt")
			require.NoError(t, os.WriteFile(output, []byte(test.existing), 0644))

			var logs lockedBuffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))

			d, err := NewDaemon(&Config{
				Device: filepath.Join(dir, "ttyNOPE"),
				Baud:   DefaultBaud,
				Output: output,
			}, logger, WithClock(fixedClock(ts)))
			require.NoError(t, err)

			// The check runs before the serial port is opened.
			err = d.Run(context.Background())
			require.Error(t, err)

			assert.Contains(t, logs.String(), test.want)

			b, err := os.ReadFile(output)
			require.NoError(t, err)
			assert.Equal(t, test.existing, string(b))
		})
	}
}
