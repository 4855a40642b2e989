// Package config loads the server configuration from an HCL file.
package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/poker"
)

// Config represents the complete server configuration
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Auth    *AuthSettings    `hcl:"auth,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Tiers   []TierConfig     `hcl:"tier,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	SweepInterval  string `hcl:"sweep_interval,optional"`
	DefaultBalance int    `hcl:"default_balance,optional"`
	EchoIgnored    *bool  `hcl:"echo_ignored,optional"`
}

// AuthSettings selects how session tokens are verified.
type AuthSettings struct {
	// Mode is one of "dev", "http" or "telegram".
	Mode        string `hcl:"mode,optional"`
	URL         string `hcl:"url,optional"`
	AdminSecret string `hcl:"admin_secret,optional"`
	BotToken    string `hcl:"bot_token,optional"`
	MaxAge      string `hcl:"max_age,optional"`
}

// StorageSettings selects the balance store.
type StorageSettings struct {
	// Driver is one of "memory", "sqlite" or "file".
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// TierConfig is a stake level. Every table is created from a tier.
type TierConfig struct {
	Level          string `hcl:"level,label"`
	SmallBlind     int    `hcl:"small_blind"`
	BigBlind       int    `hcl:"big_blind"`
	MinBuyIn       int    `hcl:"min_buy_in,optional"`
	MaxBuyIn       int    `hcl:"max_buy_in,optional"`
	MinPlayers     int    `hcl:"min_players,optional"`
	MaxSeats       int    `hcl:"max_seats,optional"`
	MaxConnections int    `hcl:"max_connections,optional"`
	DecisionTime   string `hcl:"decision_time,optional"`
	ResultDelay    string `hcl:"result_delay,optional"`
	AwayGrace      string `hcl:"away_grace,optional"`
	BigBlindOption bool   `hcl:"big_blind_option,optional"`
	// Tables is how many tables of this tier exist at startup.
	Tables int `hcl:"tables,optional"`
}

const (
	DefaultAddress        = ":8080"
	DefaultLogLevel       = "info"
	DefaultSweepInterval  = "1s"
	DefaultBalance        = 1000
	DefaultMinPlayers     = 2
	DefaultMaxSeats       = 6
	DefaultDecisionTime   = "30s"
	DefaultResultDelay    = "5s"
	DefaultStorageDriver  = "memory"
	DefaultAuthMode       = "dev"
	DefaultSQLitePath     = "balances.db"
	DefaultFileStorePath  = "balances.json"
	DefaultTelegramMaxAge = "24h"
)

// Default returns the built-in configuration: three tiers at 1/2, 2/4 and
// 5/10 with one table each.
func Default() *Config {
	c := &Config{
		Tiers: []TierConfig{
			{Level: "1", SmallBlind: 1, BigBlind: 2, MaxBuyIn: 100, Tables: 1},
			{Level: "2", SmallBlind: 2, BigBlind: 4, MaxBuyIn: 200, Tables: 1},
			{Level: "3", SmallBlind: 5, BigBlind: 10, MaxBuyIn: 500, Tables: 1},
		},
	}
	c.applyDefaults()
	return c
}

// Load loads configuration from an HCL file. A missing file yields Default.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var c Config
	diags = gohcl.DecodeBody(file.Body, nil, &c)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if len(c.Tiers) == 0 {
		c.Tiers = Default().Tiers
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Server.SweepInterval == "" {
		c.Server.SweepInterval = DefaultSweepInterval
	}
	if c.Server.DefaultBalance == 0 {
		c.Server.DefaultBalance = DefaultBalance
	}
	if c.Server.EchoIgnored == nil {
		echo := true
		c.Server.EchoIgnored = &echo
	}

	if c.Auth == nil {
		c.Auth = &AuthSettings{}
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = DefaultAuthMode
	}
	if c.Auth.MaxAge == "" {
		c.Auth.MaxAge = DefaultTelegramMaxAge
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.Path = DefaultSQLitePath
		case "file":
			c.Storage.Path = DefaultFileStorePath
		}
	}

	for i := range c.Tiers {
		t := &c.Tiers[i]
		if t.MinPlayers == 0 {
			t.MinPlayers = DefaultMinPlayers
		}
		if t.MaxSeats == 0 {
			t.MaxSeats = DefaultMaxSeats
		}
		if t.MaxConnections == 0 {
			t.MaxConnections = 2 * t.MaxSeats
		}
		if t.MinBuyIn == 0 {
			t.MinBuyIn = 2 * t.BigBlind
		}
		if t.MaxBuyIn == 0 {
			t.MaxBuyIn = 50 * t.BigBlind
		}
		if t.DecisionTime == "" {
			t.DecisionTime = DefaultDecisionTime
		}
		if t.ResultDelay == "" {
			t.ResultDelay = DefaultResultDelay
		}
		if t.AwayGrace == "" {
			t.AwayGrace = t.DecisionTime
		}
	}
	sort.SliceStable(c.Tiers, func(i, j int) bool {
		a, _ := strconv.Atoi(c.Tiers[i].Level)
		b, _ := strconv.Atoi(c.Tiers[j].Level)
		return a < b
	})
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Server.SweepInterval); err != nil {
		return fmt.Errorf("server: invalid sweep_interval: %w", err)
	}
	if c.Server.DefaultBalance < 0 {
		return fmt.Errorf("server: default_balance must not be negative")
	}

	switch c.Auth.Mode {
	case "dev":
	case "http":
		if c.Auth.URL == "" {
			return fmt.Errorf("auth: url is required for http mode")
		}
	case "telegram":
		if c.Auth.BotToken == "" {
			return fmt.Errorf("auth: bot_token is required for telegram mode")
		}
		if _, err := time.ParseDuration(c.Auth.MaxAge); err != nil {
			return fmt.Errorf("auth: invalid max_age: %w", err)
		}
	default:
		return fmt.Errorf("auth: unknown mode %q", c.Auth.Mode)
	}

	if !slices.Contains([]string{"memory", "sqlite", "file"}, c.Storage.Driver) {
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one tier must be configured")
	}
	seen := make(map[string]bool)
	for _, t := range c.Tiers {
		if seen[t.Level] {
			return fmt.Errorf("tier %s: defined twice", t.Level)
		}
		seen[t.Level] = true
		if err := t.validate(); err != nil {
			return fmt.Errorf("tier %s: %w", t.Level, err)
		}
	}
	return nil
}

func (t TierConfig) validate() error {
	switch {
	case t.SmallBlind <= 0:
		return fmt.Errorf("small blind must be positive")
	case t.BigBlind <= t.SmallBlind:
		return fmt.Errorf("big blind must be greater than small blind")
	case t.MinPlayers < 2:
		return fmt.Errorf("min players must be at least 2")
	case t.MaxSeats < t.MinPlayers:
		return fmt.Errorf("max seats must be at least min players")
	case t.MaxSeats > poker.MaxSeatsPerDeck:
		return fmt.Errorf("max seats must be at most %d", poker.MaxSeatsPerDeck)
	case t.MinBuyIn <= 0:
		return fmt.Errorf("min buy-in must be positive")
	case t.MinBuyIn > t.MaxBuyIn:
		return fmt.Errorf("min buy-in must not exceed max buy-in")
	case t.MaxConnections < t.MaxSeats:
		return fmt.Errorf("max connections must be at least max seats")
	case t.Tables < 0:
		return fmt.Errorf("tables must not be negative")
	}
	for name, value := range map[string]string{
		"decision_time": t.DecisionTime,
		"result_delay":  t.ResultDelay,
		"away_grace":    t.AwayGrace,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Tier returns the tier with the given level.
func (c *Config) Tier(level string) (TierConfig, bool) {
	for _, t := range c.Tiers {
		if t.Level == level {
			return t, true
		}
	}
	return TierConfig{}, false
}

// SweepEvery returns the sweep interval. Validate must have passed.
func (c *Config) SweepEvery() time.Duration {
	d, _ := time.ParseDuration(c.Server.SweepInterval)
	return d
}

// Rules converts the tier into engine rules. Validate must have passed.
func (t TierConfig) Rules() game.Rules {
	return game.Rules{
		SmallBlind:     t.SmallBlind,
		BigBlind:       t.BigBlind,
		MinPlayers:     t.MinPlayers,
		DecisionTime:   mustDuration(t.DecisionTime),
		ResultDelay:    mustDuration(t.ResultDelay),
		AwayGrace:      mustDuration(t.AwayGrace),
		BigBlindOption: t.BigBlindOption,
	}
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q", s))
	}
	return d
}
