// Package config loads the outreachd TOML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"outreachd/internal/domain"
	"outreachd/internal/scheduler"
)

type Config struct {
	Server    Server    `toml:"server"`
	Storage   Storage   `toml:"storage"`
	Discovery Discovery `toml:"discovery"`
	Report    Report    `toml:"report"`
	Jobs      []Job     `toml:"jobs"`
}

type Server struct {
	Addr  string `toml:"addr"`
	Debug bool   `toml:"debug"`
}

type Storage struct {
	Path string `toml:"path"`
}

type Discovery struct {
	OrgDomain string `toml:"org_domain"`
}

type Report struct {
	// Cron is a standard cron expression for the daily report job; empty
	// disables it.
	Cron string `toml:"cron"`
}

// Job configures one recurring discovery job.
type Job struct {
	ID              string `toml:"id"`
	Name            string `toml:"name"`
	IntervalMinutes int    `toml:"interval_minutes"`
	LookbackMinutes int    `toml:"lookback_minutes"`
	ActionType      string `toml:"action_type"`
	SourceURL       string `toml:"source_url"`
	ActionURL       string `toml:"action_url"`
	// Predicate selects the eligibility test: "external_attendee" or
	// "always".
	Predicate      string `toml:"predicate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs[0])
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "outreachd.db"
	}
	for i := range cfg.Jobs {
		j := &cfg.Jobs[i]
		if j.IntervalMinutes <= 0 {
			j.IntervalMinutes = 5
		}
		if j.LookbackMinutes <= 0 {
			j.LookbackMinutes = 30
		}
		if j.Predicate == "" {
			j.Predicate = "always"
		}
		if j.TimeoutSeconds <= 0 {
			j.TimeoutSeconds = 30
		}
		if j.Name == "" {
			j.Name = j.ID
		}
	}
}

var validActionTypes = map[string]bool{
	string(domain.ActionConnectionRequest): true,
	string(domain.ActionCreateDraft):       true,
	string(domain.ActionComment):           true,
	string(domain.ActionLike):              true,
	string(domain.ActionSendMessage):       true,
}

// Validate returns every problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Report.Cron != "" {
		if err := scheduler.ValidateCronExpression(c.Report.Cron); err != nil {
			errs = append(errs, fmt.Errorf("report.cron: %w", err))
		}
	}

	seenIDs := make(map[string]bool)
	for _, j := range c.Jobs {
		if j.ID == "" {
			errs = append(errs, fmt.Errorf("jobs: id is required"))
			continue
		}
		if seenIDs[j.ID] {
			errs = append(errs, fmt.Errorf("jobs: duplicate id %q", j.ID))
		}
		seenIDs[j.ID] = true
		if !validActionTypes[j.ActionType] {
			errs = append(errs, fmt.Errorf("jobs[%s]: unknown action_type %q", j.ID, j.ActionType))
		}
		if j.SourceURL == "" {
			errs = append(errs, fmt.Errorf("jobs[%s]: source_url is required", j.ID))
		}
		if j.ActionURL == "" {
			errs = append(errs, fmt.Errorf("jobs[%s]: action_url is required", j.ID))
		}
		switch j.Predicate {
		case "always", "external_attendee":
		default:
			errs = append(errs, fmt.Errorf("jobs[%s]: unknown predicate %q", j.ID, j.Predicate))
		}
		if j.Predicate == "external_attendee" && c.Discovery.OrgDomain == "" {
			errs = append(errs, fmt.Errorf("jobs[%s]: discovery.org_domain is required for the external_attendee predicate", j.ID))
		}
	}
	return errs
}
