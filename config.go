package serlog

import (
	"io"
	"strconv"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// DefaultBaud is the baud rate the device talks at unless configured
// otherwise.
const DefaultBaud = 9600

// Environment variables read by ApplyEnv.
const (
	EnvDevice = "SERLOG_DEVICE"
	EnvBaud   = "SERLOG_BAUD"
	EnvOutput = "SERLOG_OUTPUT"
)

// Config is the configuration for the serlog daemon.
type Config struct {
	// Device is the path to the serial device of the microcontroller.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0, or COM8 on Windows.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection. The connection always
	// uses 8 data bits, no parity and 1 stop bit.
	Baud int `toml:"baud"`
	// Output is the path to the log file that records are appended to.
	Output string `toml:"output"`
	// Sync makes every record wait until it reaches stable storage.
	Sync bool `toml:"sync"`
	// MetricsAddr is the address to serve Prometheus metrics on. Metrics
	// are disabled if empty.
	MetricsAddr string `toml:"metrics_addr,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Baud: DefaultBaud,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no serial device configured")
	}

	if c.Baud <= 0 {
		return errors.Errorf("invalid baud rate %d", c.Baud)
	}

	if c.Output == "" {
		return errors.New("no output file configured")
	}

	return nil
}

// ApplyEnv overrides the configuration with the environment variables
// returned by lookup, which is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDevice); ok && v != "" {
		c.Device = v
	}

	if v, ok := lookup(EnvBaud); ok && v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid $%s", EnvBaud)
		}
		c.Baud = baud
	}

	if v, ok := lookup(EnvOutput); ok && v != "" {
		c.Output = v
	}

	return nil
}

// ParseConfig parses a configuration from a reader. Fields missing from the
// reader keep their default values.
func ParseConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := toml.NewDecoder(r).Decode(config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return config, nil
}
