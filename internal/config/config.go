// Package config holds the whole process configuration, built once at
// startup and passed into each component's constructor. No component reads
// environment state directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timetree-tools/notionsync/internal/notion"
)

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

// PropertiesConfig maps semantic fields to the operator's database property
// names. Title, Date and ExternalID are mandatory; leaving Memo/URL1/URL2
// empty disables that field.
type PropertiesConfig struct {
	Title      string `yaml:"title"`
	Date       string `yaml:"date"`
	Memo       string `yaml:"memo"`
	ExternalID string `yaml:"external_id"`
	URL1       string `yaml:"url1"`
	URL2       string `yaml:"url2"`
}

func (p PropertiesConfig) Map() notion.PropertyMap {
	return notion.PropertyMap{
		Title:      p.Title,
		Date:       p.Date,
		Memo:       p.Memo,
		ExternalID: p.ExternalID,
		URL1:       p.URL1,
		URL2:       p.URL2,
	}
}

type SyncConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	UTCOffset     string `yaml:"utc_offset"`

	// Timeout bounds one whole batch run; empty means no deadline.
	Timeout string `yaml:"timeout"`
}

func (s SyncConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(s.Timeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}

type TimeTreeConfig struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	CalendarURL string `yaml:"calendar_url"`
	WeeksBack   int    `yaml:"weeks_back"`
	Headless    bool   `yaml:"headless"`
}

type SourceConfig struct {
	// EventsFile is a JSON feed of normalized events. Used when the scraper
	// is not configured, and by the watch mode.
	EventsFile string          `yaml:"events_file"`
	TimeTree   *TimeTreeConfig `yaml:"timetree,omitempty"`
}

type HistoryConfig struct {
	// PostgresDSN enables run-history recording when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

type Config struct {
	Notion     NotionConfig     `yaml:"notion"`
	Properties PropertiesConfig `yaml:"properties"`
	Sync       SyncConfig       `yaml:"sync"`
	Source     SourceConfig     `yaml:"source"`
	History    HistoryConfig    `yaml:"history"`
}

func DefaultConfig() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:    "https://api.notion.com",
			APIVersion: "2022-06-28",
		},
		Sync: SyncConfig{
			MaxConcurrent: 3,
			UTCOffset:     "+09:00",
		},
	}
}

// Normalize fills zero values with defaults so partially-filled configs
// behave correctly.
func (c *Config) Normalize() {
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = "https://api.notion.com"
	}
	if c.Notion.APIVersion == "" {
		c.Notion.APIVersion = "2022-06-28"
	}
	if c.Sync.MaxConcurrent <= 0 {
		c.Sync.MaxConcurrent = 3
	}
	if c.Sync.UTCOffset == "" {
		c.Sync.UTCOffset = "+09:00"
	}
	if c.Source.TimeTree != nil && c.Source.TimeTree.WeeksBack <= 0 {
		c.Source.TimeTree.WeeksBack = 20
	}
}

// Validate reports fatal configuration errors: missing credentials or
// missing mandatory property mappings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Notion.Token) == "" {
		return errors.New("notion.token is required")
	}
	if strings.TrimSpace(c.Notion.DatabaseID) == "" {
		return errors.New("notion.database_id is required")
	}
	if err := c.Properties.Map().Validate(); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	if _, err := c.Sync.TimeoutDuration(); err != nil {
		return fmt.Errorf("sync.timeout: %w", err)
	}
	return nil
}

// Load reads YAML configuration from path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}
