package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bradeyre/platinum-repairs-sub001/internal/calendar"
	"github.com/bradeyre/platinum-repairs-sub001/internal/connector"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/policy"
)

// DomainConfig is the operator-maintained YAML file describing the sources
// to poll and the business rules applied to their tickets. Unlike the env
// config it changes with the business, not the deployment.
type DomainConfig struct {
	Sources  []connector.SourceConfig       `yaml:"sources"`
	Policies map[string]policy.SourcePolicy `yaml:"policies"`

	StatusMap        map[string]string   `yaml:"status_map"`
	TargetStatuses   []string            `yaml:"target_statuses"`
	ReworkKeywords   []string            `yaml:"rework_keywords"`
	DeviceCategories map[string][]string `yaml:"device_categories"`

	Calendar CalendarConfig `yaml:"calendar"`

	// DefaultActiveRatio estimates the active share of a ticket's open time
	// when no status history exists. Zero falls back to the built-in default.
	DefaultActiveRatio float64 `yaml:"default_active_ratio"`

	// Schedule is a cron expression for automatic incremental passes.
	// Empty disables scheduling; the service then only syncs on demand.
	Schedule string `yaml:"schedule"`
}

// CalendarConfig is the YAML shape of the business calendar.
type CalendarConfig struct {
	FirstWeekday string `yaml:"first_weekday"`
	LastWeekday  string `yaml:"last_weekday"`
	DayStart     string `yaml:"day_start"`
	DayEnd       string `yaml:"day_end"`
	Timezone     string `yaml:"timezone"`
}

// LoadDomain reads and validates the domain config file.
func LoadDomain(path string) (*DomainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain config: %w", err)
	}
	// ${VAR} references let API keys live in the environment.
	expanded := os.ExpandEnv(string(raw))
	var cfg DomainConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse domain config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *DomainConfig) validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("domain config: at least one source is required")
	}
	seen := make(map[string]bool)
	for _, src := range c.Sources {
		if src.Name == "" || src.BaseURL == "" {
			return fmt.Errorf("domain config: every source needs a name and base_url")
		}
		if seen[src.Name] {
			return fmt.Errorf("domain config: duplicate source %q", src.Name)
		}
		seen[src.Name] = true
	}
	for name := range c.Policies {
		if !seen[name] {
			return fmt.Errorf("domain config: policy for unknown source %q", name)
		}
	}
	return nil
}

// StatusTable converts the YAML status map into canonical statuses.
func (c *DomainConfig) StatusTable() map[string]domain.CanonicalStatus {
	table := make(map[string]domain.CanonicalStatus, len(c.StatusMap))
	for raw, canonical := range c.StatusMap {
		table[raw] = domain.CanonicalStatus(canonical)
	}
	return table
}

// CanonicalTargets converts the configured target statuses.
func (c *DomainConfig) CanonicalTargets() []domain.CanonicalStatus {
	targets := make([]domain.CanonicalStatus, 0, len(c.TargetStatuses))
	for _, s := range c.TargetStatuses {
		targets = append(targets, domain.CanonicalStatus(s))
	}
	return targets
}

// CalendarSettings converts the YAML calendar block into calendar settings.
func (c *DomainConfig) CalendarSettings() (calendar.Settings, error) {
	first, err := parseWeekday(c.Calendar.FirstWeekday, time.Monday)
	if err != nil {
		return calendar.Settings{}, err
	}
	last, err := parseWeekday(c.Calendar.LastWeekday, time.Friday)
	if err != nil {
		return calendar.Settings{}, err
	}
	s := calendar.Settings{
		FirstWeekday: first,
		LastWeekday:  last,
		DayStart:     c.Calendar.DayStart,
		DayEnd:       c.Calendar.DayEnd,
		Timezone:     c.Calendar.Timezone,
	}
	if s.DayStart == "" {
		s.DayStart = "08:00"
	}
	if s.DayEnd == "" {
		s.DayEnd = "17:00"
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	return s, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(val string, fallback time.Weekday) (time.Weekday, error) {
	if val == "" {
		return fallback, nil
	}
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(val))]
	if !ok {
		return 0, fmt.Errorf("domain config: unknown weekday %q", val)
	}
	return day, nil
}
