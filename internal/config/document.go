package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/bakkerme/posterdigest/internal/core"
)

const (
	DefaultLatestURL    = "http://www.impawards.com/archives/latest.html"
	DefaultBaseURL      = "http://www.impawards.com"
	DefaultHistoryLimit = 500
	DefaultStatePath    = "digest_state.json"
)

// Document is the posterdigest.yaml configuration file.
type Document struct {
	Archive   ArchiveConfig   `yaml:"archive"`
	Policy    PolicyConfig    `yaml:"policy"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Email     EmailConfig     `yaml:"email"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

type ArchiveConfig struct {
	LatestURL string `yaml:"latest_url,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Pages     int    `yaml:"pages,omitempty"`
	// Format selects the listing parser: "html" (default) or "atom".
	Format string `yaml:"format,omitempty"`
	// MinInterval spaces page fetches; accepts extended durations ("500ms", "1d").
	MinInterval string `yaml:"min_interval,omitempty"`
}

type PolicyConfig struct {
	Priority       []string `yaml:"priority,omitempty"`
	ResolutionFile string   `yaml:"resolution_file,omitempty"`
	GenreFile      string   `yaml:"genre_file,omitempty"`
	RequiredGenres []string `yaml:"required_genres,omitempty"`
	SkipRule       string   `yaml:"skip_rule,omitempty"`
}

type DownloadsConfig struct {
	Dir              string `yaml:"dir,omitempty"`
	ThumbnailWidth   int    `yaml:"thumbnail_width,omitempty"`
	ThumbnailQuality int    `yaml:"thumbnail_quality,omitempty"`
	Timeout          string `yaml:"timeout,omitempty"`
}

type TrackerConfig struct {
	// Backend is "file" (default), "sqlite" or "badger".
	Backend          string `yaml:"backend,omitempty"`
	Path             string `yaml:"path,omitempty"`
	Table            string `yaml:"table,omitempty"`
	HistoryLimit     int    `yaml:"history_limit,omitempty"`
	PersistEachBatch bool   `yaml:"persist_each_batch,omitempty"`
}

type EmailConfig struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	From          string `yaml:"from,omitempty"`
	To            string `yaml:"to,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
	MaxSizeMB     int    `yaml:"max_size_mb,omitempty"`
	MaxRetries    *int   `yaml:"max_retries,omitempty"`
	RetryDelay    string `yaml:"retry_delay,omitempty"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

type SnapshotConfig struct {
	Save    bool   `yaml:"save,omitempty"`
	Restore bool   `yaml:"restore,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// LoadDocument reads path. A missing file yields the defaults.
func LoadDocument(path string) (*Document, error) {
	doc := &Document{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) ApplyDefaults() {
	if strings.TrimSpace(d.Archive.LatestURL) == "" {
		d.Archive.LatestURL = DefaultLatestURL
	}
	if strings.TrimSpace(d.Archive.BaseURL) == "" {
		d.Archive.BaseURL = DefaultBaseURL
	}
	d.Archive.BaseURL = strings.TrimRight(d.Archive.BaseURL, "/")
	if d.Archive.Pages <= 0 {
		d.Archive.Pages = 1
	}
	if d.Archive.Format == "" {
		d.Archive.Format = "html"
	}
	if d.Policy.ResolutionFile == "" {
		d.Policy.ResolutionFile = "resolution_config.yaml"
	}
	if d.Policy.GenreFile == "" {
		d.Policy.GenreFile = "genre_config.yaml"
	}
	if d.Downloads.Dir == "" {
		d.Downloads.Dir = "downloads"
	}
	if d.Tracker.Backend == "" {
		d.Tracker.Backend = "file"
	}
	if d.Tracker.Path == "" {
		switch d.Tracker.Backend {
		case "sqlite":
			d.Tracker.Path = "digest_state.db"
		case "badger":
			d.Tracker.Path = "digest_state.badger"
		default:
			d.Tracker.Path = DefaultStatePath
		}
	}
	if d.Tracker.HistoryLimit <= 0 {
		d.Tracker.HistoryLimit = DefaultHistoryLimit
	}
	if d.Snapshot.Path == "" {
		d.Snapshot.Path = "snapshots/latest.json"
	}
}

// Validate checks the document after defaults have been applied.
func (d *Document) Validate() error {
	for label, raw := range map[string]string{"archive latest_url": d.Archive.LatestURL, "archive base_url": d.Archive.BaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", label, raw)
		}
	}
	switch d.Archive.Format {
	case "html", "atom":
	default:
		return fmt.Errorf("archive format must be html or atom, got %q", d.Archive.Format)
	}
	for label, raw := range map[string]string{
		"archive min_interval": d.Archive.MinInterval,
		"downloads timeout":    d.Downloads.Timeout,
		"email retry_delay":    d.Email.RetryDelay,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if v, err := parseDurationExtended(raw); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		} else if v < 0 {
			return fmt.Errorf("%s must not be negative", label)
		}
	}
	for _, raw := range d.Policy.Priority {
		if _, ok := core.ParseResolutionClass(raw); !ok {
			return fmt.Errorf("policy priority: unknown resolution class %q", raw)
		}
	}
	switch d.Tracker.Backend {
	case "file", "sqlite", "badger":
	default:
		return fmt.Errorf("tracker backend must be file, sqlite or badger, got %q", d.Tracker.Backend)
	}
	if d.Email.MaxRetries != nil && *d.Email.MaxRetries < 0 {
		return fmt.Errorf("email max_retries must not be negative")
	}
	if d.Email.MaxSizeMB < 0 {
		return fmt.Errorf("email max_size_mb must not be negative")
	}
	if d.Email.From != "" {
		if _, err := mail.ParseAddress(d.Email.From); err != nil {
			return fmt.Errorf("email: invalid from address")
		}
	}
	if d.Email.To != "" {
		if _, err := mail.ParseAddressList(d.Email.To); err != nil {
			return fmt.Errorf("email: invalid to address")
		}
	}
	if d.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(d.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule cron: %w", err)
		}
	}
	if d.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(d.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule timezone: %w", err)
		}
	}
	if d.Snapshot.Save && d.Snapshot.Restore {
		return fmt.Errorf("snapshot save and restore are mutually exclusive")
	}
	return nil
}

// ResolutionPriority returns the configured resolution order, or nil for the default.
func (p PolicyConfig) ResolutionPriority() []core.ResolutionClass {
	var out []core.ResolutionClass
	for _, raw := range p.Priority {
		if class, ok := core.ParseResolutionClass(raw); ok {
			out = append(out, class)
		}
	}
	return out
}

func (a ArchiveConfig) MinIntervalDuration() time.Duration {
	return durationOr(a.MinInterval, 0)
}

func (d DownloadsConfig) TimeoutDuration() time.Duration {
	return durationOr(d.Timeout, 0)
}

func (e EmailConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

func (e EmailConfig) RetryDelayDuration(fallback time.Duration) time.Duration {
	return durationOr(e.RetryDelay, fallback)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := parseDurationExtended(raw)
	if err != nil {
		return fallback
	}
	return d
}
