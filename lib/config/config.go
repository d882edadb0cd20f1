// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "DCPS_CONFIG"

// ErrNoConfig is returned by [Load] when no config path was given.
var ErrNoConfig = errors.New(EnvironmentVariable + " environment variable not set; set it to the path of a link config file, or use --config")

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration of one link endpoint.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment" json:"environment"`

	// Domain is the DDS domain the endpoint participates in.
	Domain int `yaml:"domain" json:"domain"`

	// Link configures the reliable TCP link.
	Link LinkConfig `yaml:"link" json:"link"`

	// Cache configures reader and writer history.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Access lists the publish/subscribe rules. With no rules,
	// everything is denied.
	Access []AccessRule `yaml:"access" json:"access"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains the sections that can be overridden per
// environment. Zero values in an override leave the base value alone.
type Overrides struct {
	Link  *LinkConfig  `yaml:"link,omitempty" json:"link,omitempty"`
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// LinkConfig configures the reliable TCP link. Durations are integer
// milliseconds; zero keeps the "disabled", "never" or "forever"
// meaning noted on each field.
type LinkConfig struct {
	// ListenAddress is where the passive side accepts connections.
	ListenAddress string `yaml:"listen_address" json:"listen_address"`

	// LocalAddress is the address this endpoint announces to the peers
	// it connects to. Defaults to ListenAddress.
	LocalAddress string `yaml:"local_address" json:"local_address"`

	// EnableNagle leaves Nagle's algorithm on. Off by default.
	EnableNagle bool `yaml:"enable_nagle" json:"enable_nagle"`

	// ConnRetryInitialDelay is the wait before the first reconnect
	// attempt. Default: 500.
	ConnRetryInitialDelay int `yaml:"conn_retry_initial_delay" json:"conn_retry_initial_delay"`

	// ConnRetryBackoffMultiplier scales the wait after every failed
	// attempt. Default: 2.
	ConnRetryBackoffMultiplier float64 `yaml:"conn_retry_backoff_multiplier" json:"conn_retry_backoff_multiplier"`

	// ConnRetryAttempts bounds the reconnect attempts. Zero declares the
	// link lost on the first failure. Default: 3.
	ConnRetryAttempts int `yaml:"conn_retry_attempts" json:"conn_retry_attempts"`

	// MaxOutputPausePeriod is how long a write may stall before the
	// link is declared lost. Zero disables the check.
	MaxOutputPausePeriod int `yaml:"max_output_pause_period" json:"max_output_pause_period"`

	// PassiveReconnectDuration is how long the passive side waits for
	// the peer to reconnect. Zero declares the link lost immediately.
	// Default: 2000.
	PassiveReconnectDuration int `yaml:"passive_reconnect_duration" json:"passive_reconnect_duration"`

	// PassiveConnectDuration is how long an accept waits for the peer's
	// first connection. Zero waits forever. Default: 10000.
	PassiveConnectDuration int `yaml:"passive_connect_duration" json:"passive_connect_duration"`

	// SocketBufferSize sets SO_SNDBUF and SO_RCVBUF. Zero keeps the
	// system default.
	SocketBufferSize int `yaml:"socket_buffer_size" json:"socket_buffer_size"`

	// Compression is the frame compression: "none", "lz4" or "zstd".
	Compression string `yaml:"compression" json:"compression"`

	// SendQueueLimit bounds the frames queued while the link is
	// suspended. Zero is unbounded.
	SendQueueLimit int `yaml:"send_queue_limit" json:"send_queue_limit"`
}

// CacheConfig configures sample history.
type CacheConfig struct {
	// HistoryDepth bounds the samples kept per instance by readers.
	// -1 keeps everything. Default: -1.
	HistoryDepth int `yaml:"history_depth" json:"history_depth"`

	// DurabilityDepth bounds the samples per instance a writer replays
	// to new readers. -1 replays everything. Default: 1.
	DurabilityDepth int `yaml:"durability_depth" json:"durability_depth"`
}

// AccessRule allows or denies publishing or subscribing on matching
// topics and partitions. Patterns use "*", "?" and "**".
type AccessRule struct {
	// Domain restricts the rule to one domain. Absent matches every
	// domain.
	Domain *int `yaml:"domain,omitempty" json:"domain,omitempty"`

	Topic     string `yaml:"topic" json:"topic"`
	Partition string `yaml:"partition" json:"partition"`

	// Direction is "publish", "subscribe" or "both".
	Direction string `yaml:"direction" json:"direction"`

	// Deny turns the rule into a deny rule.
	Deny bool `yaml:"deny" json:"deny"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address is the listen address of the /metrics endpoint. Empty
	// disables it.
	Address string `yaml:"address" json:"address"`
}

// Default returns the default configuration, the base every config
// file is loaded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Link: LinkConfig{
			ListenAddress:              "127.0.0.1:7400",
			ConnRetryInitialDelay:      500,
			ConnRetryBackoffMultiplier: 2,
			ConnRetryAttempts:          3,
			PassiveReconnectDuration:   2000,
			PassiveConnectDuration:     10000,
			Compression:                "none",
		},
		Cache: CacheConfig{
			HistoryDepth:    -1,
			DurabilityDepth: 1,
		},
	}
}

// Load loads configuration from the file named by DCPS_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, ErrNoConfig
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. ".yaml" and ".yml" files are
// YAML; ".json" and ".jsonc" files are JSON, with comments and trailing
// commas allowed.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json or .jsonc)", path, extension)
	}
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if link := overrides.Link; link != nil {
		overrideString(&c.Link.ListenAddress, link.ListenAddress)
		overrideString(&c.Link.LocalAddress, link.LocalAddress)
		overrideString(&c.Link.Compression, link.Compression)
		overrideNumber(&c.Link.ConnRetryInitialDelay, link.ConnRetryInitialDelay)
		overrideNumber(&c.Link.ConnRetryBackoffMultiplier, link.ConnRetryBackoffMultiplier)
		overrideNumber(&c.Link.ConnRetryAttempts, link.ConnRetryAttempts)
		overrideNumber(&c.Link.MaxOutputPausePeriod, link.MaxOutputPausePeriod)
		overrideNumber(&c.Link.PassiveReconnectDuration, link.PassiveReconnectDuration)
		overrideNumber(&c.Link.PassiveConnectDuration, link.PassiveConnectDuration)
		overrideNumber(&c.Link.SocketBufferSize, link.SocketBufferSize)
		overrideNumber(&c.Link.SendQueueLimit, link.SendQueueLimit)
		// A bool override cannot be told apart from its absence, so it
		// always applies.
		c.Link.EnableNagle = link.EnableNagle
	}

	if cache := overrides.Cache; cache != nil {
		overrideNumber(&c.Cache.HistoryDepth, cache.HistoryDepth)
		overrideNumber(&c.Cache.DurabilityDepth, cache.DurabilityDepth)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func overrideNumber[N int | float64](target *N, value N) {
	if value != 0 {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in address fields.
func (c *Config) expandVariables() {
	c.Link.ListenAddress = expandVars(c.Link.ListenAddress)
	c.Link.LocalAddress = expandVars(c.Link.LocalAddress)
	c.Metrics.Address = expandVars(c.Metrics.Address)
	if c.Link.LocalAddress == "" {
		c.Link.LocalAddress = c.Link.ListenAddress
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Domain < 0 {
		errs = append(errs, fmt.Errorf("domain must not be negative, got %d", c.Domain))
	}

	link := c.Link
	nonNegative := []struct {
		name  string
		value int
	}{
		{"link.conn_retry_initial_delay", link.ConnRetryInitialDelay},
		{"link.conn_retry_attempts", link.ConnRetryAttempts},
		{"link.max_output_pause_period", link.MaxOutputPausePeriod},
		{"link.passive_reconnect_duration", link.PassiveReconnectDuration},
		{"link.passive_connect_duration", link.PassiveConnectDuration},
		{"link.socket_buffer_size", link.SocketBufferSize},
		{"link.send_queue_limit", link.SendQueueLimit},
	}
	for _, field := range nonNegative {
		if field.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", field.name, field.value))
		}
	}
	if link.ConnRetryBackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("link.conn_retry_backoff_multiplier must be at least 1, got %v", link.ConnRetryBackoffMultiplier))
	}
	compressions := []string{"", "none", "lz4", "zstd"}
	if !slices.Contains(compressions, link.Compression) {
		errs = append(errs, fmt.Errorf("link.compression must be one of: none, lz4, zstd; got %q", link.Compression))
	}

	if c.Cache.HistoryDepth == 0 || c.Cache.HistoryDepth < -1 {
		errs = append(errs, fmt.Errorf("cache.history_depth must be positive or -1, got %d", c.Cache.HistoryDepth))
	}
	if c.Cache.DurabilityDepth == 0 || c.Cache.DurabilityDepth < -1 {
		errs = append(errs, fmt.Errorf("cache.durability_depth must be positive or -1, got %d", c.Cache.DurabilityDepth))
	}

	directions := []string{"publish", "subscribe", "both"}
	for i, rule := range c.Access {
		if rule.Topic == "" {
			errs = append(errs, fmt.Errorf("access[%d].topic is required", i))
		}
		if !slices.Contains(directions, rule.Direction) {
			errs = append(errs, fmt.Errorf("access[%d].direction must be one of: %v", i, directions))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Milliseconds converts a millisecond config value to a duration.
func Milliseconds(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}
