package serlog

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Flag names registered by RegisterFlags.
const (
	FlagDevice      = "device"
	FlagBaud        = "baud"
	FlagOutput      = "output"
	FlagSync        = "sync"
	FlagMetricsAddr = "metrics-addr"
)

// RegisterFlags registers the configuration flags on the given flag set.
// Their values are applied with Config.ApplyFlags.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagDevice, "d", "", "serial device, e.g. /dev/ttyACM0 or COM8 ($"+EnvDevice+")")
	fs.IntP(FlagBaud, "b", DefaultBaud, "baud rate ($"+EnvBaud+")")
	fs.StringP(FlagOutput, "o", "", "log file to append records to ($"+EnvOutput+")")
	fs.Bool(FlagSync, false, "wait for every record to reach stable storage")
	fs.String(FlagMetricsAddr, "", "address to serve Prometheus metrics on")
}

// ApplyFlags overrides the configuration with the flags registered by
// RegisterFlags. Only flags that were set on the command line are applied.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error

	if fs.Changed(FlagDevice) {
		if c.Device, err = fs.GetString(FlagDevice); err != nil {
			return errors.Wrapf(err, "invalid --%s", FlagDevice)
		}
	}

	if fs.Changed(FlagBaud) {
		if c.Baud, err = fs.GetInt(FlagBaud); err != nil {
			return errors.Wrapf(err, "invalid --%s", FlagBaud)
		}
	}

	if fs.Changed(FlagOutput) {
		if c.Output, err = fs.GetString(FlagOutput); err != nil {
			return errors.Wrapf(err, "invalid --%s", FlagOutput)
		}
	}

	if fs.Changed(FlagSync) {
		if c.Sync, err = fs.GetBool(FlagSync); err != nil {
			return errors.Wrapf(err, "invalid --%s", FlagSync)
		}
	}

	if fs.Changed(FlagMetricsAddr) {
		if c.MetricsAddr, err = fs.GetString(FlagMetricsAddr); err != nil {
			return errors.Wrapf(err, "invalid --%s", FlagMetricsAddr)
		}
	}

	return nil
}
