package common

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags are the command-line overrides shared by both commands.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath    string
	StationID     string
	ListenAddr    string
	AdvertiseAddr string
	MetricsAddr   string
	Password      string
	LogLevel      string
	LogJSON       bool
	SeedFile      string
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&f.StationID, "id", "", "Station id")
	fs.StringVar(&f.ListenAddr, "addr", "", "HTTP listen address")
	fs.StringVar(&f.AdvertiseAddr, "advertise", "", "Address other stations reach this one at")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Prometheus listen address (disabled if empty)")
	fs.StringVar(&f.Password, "password", "", "Ring join password")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Log as JSON")
	fs.StringVar(&f.SeedFile, "seed-file", "", "Hex seed file, created if missing")
	return f
}

// IsSet reports whether the named flag was given.
func (f *Flags) IsSet(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Load reads the config file, if any, and applies the flags given on the
// command line over it.
func (f *Flags) Load() (*Config, error) {
	cfg := DefaultConfig()
	if f.ConfigPath != "" {
		var err error
		if cfg, err = LoadConfig(f.ConfigPath); err != nil {
			return nil, err
		}
	}

	if f.IsSet("id") {
		cfg.StationID = f.StationID
	}
	if f.IsSet("addr") {
		cfg.ListenAddr = f.ListenAddr
	}
	if f.IsSet("advertise") {
		cfg.AdvertiseAddr = f.AdvertiseAddr
	}
	if f.IsSet("metrics-addr") {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if f.IsSet("password") {
		cfg.Ring.Password = f.Password
	}
	if f.IsSet("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if f.IsSet("log-json") {
		cfg.LogJSON = f.LogJSON
	}
	if f.IsSet("seed-file") {
		cfg.Keys.SeedFile = f.SeedFile
	}
	return cfg, nil
}

// Fatal prints err and exits.
func Fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", what, strings.TrimSpace(err.Error()))
	os.Exit(1)
}
