package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"libdb.so/serlog"
)

var verbose = false

func init() {
	registerFlags(pflag.CommandLine)
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
}

func registerFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "configuration file (optional)")
	serlog.RegisterFlags(fs)
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
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
	cfg, err := readConfig(pflag.CommandLine, os.LookupEnv)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := serlog.NewDaemon(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

// readConfig builds the configuration from the config file, the environment
// and the flags, in increasing order of precedence.
func readConfig(fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (*serlog.Config, error) {
	cfg := serlog.DefaultConfig()

	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		cfg, err = serlog.ParseConfig(f)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}

	return cfg, nil
}
