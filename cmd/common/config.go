package common

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/services"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file of a station command.
type Config struct {
	StationID     string `yaml:"station_id"`
	ListenAddr    string `yaml:"listen_addr"`
	AdvertiseAddr string `yaml:"advertise_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	EnablePprof   bool   `yaml:"enable_pprof"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Keys KeysConfig          `yaml:"keys"`
	Ring protocol.RingConfig `yaml:"ring"`

	Coordinator CoordinatorConfig        `yaml:"coordinator"`
	Postgres    *services.PostgresConfig `yaml:"postgres"`

	// History is how many deliveries the ring API keeps.
	History int `yaml:"history"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// KeysConfig selects the station's signing key.
type KeysConfig struct {
	Seed     string `yaml:"seed"`
	SeedFile string `yaml:"seed_file"`
}

// CoordinatorConfig tells a member where the ring is.
type CoordinatorConfig struct {
	Address   string `yaml:"address"`
	PublicKey string `yaml:"public_key"`
}

// DefaultConfig returns a configuration with every optional field set.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9000",
		LogLevel:        "info",
		Ring:            protocol.DefaultRingConfig(),
		History:         256,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults. Unknown fields are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields both commands need. member reports whether the
// station joins an existing ring.
func (c *Config) Validate(member bool) error {
	var errs []error
	if _, err := protocol.NewStationID(c.StationID); err != nil {
		errs = append(errs, fmt.Errorf("station_id: %w", err))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if err := c.Ring.Validate(); err != nil {
		errs = append(errs, err)
	}
	if member && c.Coordinator.Address == "" {
		errs = append(errs, errors.New("coordinator.address is required"))
	}
	if !member && c.Postgres != nil && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, errors.New("postgres needs dsn or host"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Advertise returns the address other stations reach this one at.
func (c *Config) Advertise() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.ListenAddr
}
