// Package config loads the caldav2rem YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyp0633/caldav2rem/davclient"
	"github.com/cyp0633/caldav2rem/internal/httpclient"
	"github.com/cyp0633/caldav2rem/internal/scheduler"
)

const (
	DefaultServer = "p01-caldav.icloud.com"

	StrategyMultiget = "multiget"
	StrategyPerHref  = "per-href"

	KeyHostPort = "host-port"
	KeyServer   = "server"
)

// Environment variables that override the file
const (
	EnvUsername = "CALDAV2REM_USERNAME"
	EnvPassword = "CALDAV2REM_PASSWORD"
	EnvServer   = "CALDAV2REM_SERVER"
	EnvPort     = "CALDAV2REM_PORT"
)

// Config is the top-level application configuration.
type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	// Insecure talks plain http, for local test servers only.
	Insecure bool `yaml:"insecure"`

	// FetchStrategy is "multiget" (default) or "per-href" for servers that
	// reject calendar-multiget.
	FetchStrategy string `yaml:"fetch_strategy"`
	// FetchConcurrency bounds parallel per-href requests.
	FetchConcurrency int `yaml:"fetch_concurrency"`
	// ConnectionKey is "host-port" (default) or "server".
	ConnectionKey string `yaml:"connection_key"`
	// RequestTimeout limits each request. Zero leaves it to the transport.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Timezone is the IANA zone reminder times are printed in. Empty means
	// the system zone.
	Timezone string `yaml:"timezone"`
	// OutputDir receives one <calendar>.rem per calendar. Empty writes to
	// stdout.
	OutputDir string `yaml:"output_dir"`
	// Calendars restricts conversion to these display names. Empty converts
	// every calendar.
	Calendars []string `yaml:"calendars"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Schedule is a cron expression (e.g. "0 */6 * * *") for periodic
	// regeneration. Empty runs once.
	Schedule string `yaml:"schedule"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:           DefaultServer,
		Port:             httpclient.DefaultPort,
		FetchStrategy:    StrategyMultiget,
		FetchConcurrency: 1,
		ConnectionKey:    KeyHostPort,
		LogLevel:         "info",
		LogFormat:        "text",
		Calendars:        []string{},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.Port <= 0 {
		c.Port = httpclient.DefaultPort
	}
	c.FetchStrategy = strings.ToLower(strings.TrimSpace(c.FetchStrategy))
	if c.FetchStrategy == "" {
		c.FetchStrategy = StrategyMultiget
	}
	if c.FetchConcurrency < 1 {
		c.FetchConcurrency = 1
	}
	c.ConnectionKey = strings.ToLower(strings.TrimSpace(c.ConnectionKey))
	if c.ConnectionKey == "" {
		c.ConnectionKey = KeyHostPort
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Calendars == nil {
		c.Calendars = []string{}
	}
}

// Load reads the YAML file at path, applies environment overrides and
// normalizes the result. A missing file is not an error: defaults plus the
// environment may be enough. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Password = v
	}
	if v, ok := lookup(EnvServer); ok && v != "" {
		c.Server = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.Port = port
	}
	return nil
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required (or set %s)", EnvUsername)
	}
	if c.Password == "" {
		return fmt.Errorf("password is required (or set %s)", EnvPassword)
	}
	if c.Server == "" {
		return errors.New("server is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	if _, err := c.KeyMode(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule != "" {
		if _, err := scheduler.Parse(c.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// Strategy maps fetch_strategy to the client setting
func (c *Config) Strategy() (davclient.FetchStrategy, error) {
	switch c.FetchStrategy {
	case StrategyMultiget, "":
		return davclient.FetchMultiget, nil
	case StrategyPerHref:
		return davclient.FetchPerHref, nil
	default:
		return 0, fmt.Errorf("unknown fetch_strategy %q", c.FetchStrategy)
	}
}

// KeyMode maps connection_key to the session setting
func (c *Config) KeyMode() (httpclient.KeyMode, error) {
	switch c.ConnectionKey {
	case KeyHostPort, "":
		return httpclient.KeyByHostPort, nil
	case KeyServer:
		return httpclient.KeyByServer, nil
	default:
		return 0, fmt.Errorf("unknown connection_key %q", c.ConnectionKey)
	}
}

// Location loads the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

// Session builds the transport settings. Call Validate first.
func (c *Config) Session() httpclient.Config {
	keyMode, _ := c.KeyMode()
	return httpclient.Config{
		Username:            c.Username,
		Password:            c.Password,
		Server:              c.Server,
		Port:                c.Port,
		Insecure:            c.Insecure,
		KeyMode:             keyMode,
		MaxConnsPerEndpoint: c.FetchConcurrency,
		Timeout:             c.RequestTimeout,
	}
}

// Client builds the discovery and fetch settings. Call Validate first.
func (c *Config) Client() *davclient.Config {
	strategy, _ := c.Strategy()
	return &davclient.Config{
		Strategy:    strategy,
		Concurrency: c.FetchConcurrency,
	}
}
