package serlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		cfg, err := ParseConfig(strings.NewReader(`
device = "/dev/ttyACM0"
baud = 115200
output = "/var/log/arduino.txt"
sync = true
metrics_addr = "127.0.0.1:9100"
`))
		require.NoError(t, err)
		assert.Equal(t, &Config{
			Device:      "/dev/ttyACM0",
			Baud:        115200,
			Output:      "/var/log/arduino.txt",
			Sync:        true,
			MetricsAddr: "127.0.0.1:9100",
		}, cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := ParseConfig(strings.NewReader(`
device = "COM8"
output = "Sketch_Code2_Logs.txt"
`))
		require.NoError(t, err)
		assert.Equal(t, DefaultBaud, cfg.Baud)
		assert.False(t, cfg.Sync)
		assert.Empty(t, cfg.MetricsAddr)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseConfig(strings.NewReader(`device = `))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Device: "/dev/ttyUSB0", Baud: 9600, Output: "out.txt"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"NoDevice", func(c *Config) { c.Device = "" }, "no serial device"},
		{"ZeroBaud", func(c *Config) { c.Baud = 0 }, "invalid baud rate"},
		{"NegativeBaud", func(c *Config) { c.Baud = -9600 }, "invalid baud rate"},
		{"NoOutput", func(c *Config) { c.Output = "" }, "no output file"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid
			test.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errMsg)
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}
	}

	t.Run("Overrides", func(t *testing.T) {
		cfg := &Config{Device: "/dev/ttyUSB0", Baud: 9600, Output: "a.txt"}
		err := cfg.ApplyEnv(env(map[string]string{
			EnvDevice: "/dev/ttyACM1",
			EnvBaud:   "57600",
			EnvOutput: "b.txt",
		}))
		require.NoError(t, err)
		assert.Equal(t, &Config{Device: "/dev/ttyACM1", Baud: 57600, Output: "b.txt"}, cfg)
	})

	t.Run("EmptyIgnored", func(t *testing.T) {
		cfg := &Config{Device: "/dev/ttyUSB0", Baud: 9600, Output: "a.txt"}
		require.NoError(t, cfg.ApplyEnv(env(map[string]string{EnvDevice: ""})))
		assert.Equal(t, "/dev/ttyUSB0", cfg.Device)
	})

	t.Run("InvalidBaud", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.ApplyEnv(env(map[string]string{EnvBaud: "fast"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvBaud)
	})
}
