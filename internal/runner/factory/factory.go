// Package factory wires the runner's collaborators from the configuration
// document and the environment.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bakkerme/posterdigest/internal/artifacts"
	"github.com/bakkerme/posterdigest/internal/config"
	"github.com/bakkerme/posterdigest/internal/dispatcher"
	"github.com/bakkerme/posterdigest/internal/outputs/digest"
	"github.com/bakkerme/posterdigest/internal/outputs/email"
	"github.com/bakkerme/posterdigest/internal/outputs/email/smtp"
	"github.com/bakkerme/posterdigest/internal/runner"
	"github.com/bakkerme/posterdigest/internal/selector"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
	archiveimpl "github.com/bakkerme/posterdigest/internal/sources/archive/impl"
	"github.com/bakkerme/posterdigest/internal/sources/tmdb"
	tmdbimpl "github.com/bakkerme/posterdigest/internal/sources/tmdb/impl"
	"github.com/bakkerme/posterdigest/internal/tracker"
)

// Options are the per-invocation overrides that come from the command line.
type Options struct {
	Pages           int
	ExtraGenres     []string
	DryRun          bool
	StartFresh      bool
	SnapshotSave    bool
	SnapshotRestore bool
	SnapshotPath    string
}

// Factory builds a runner. The collaborator fields are optional; nil ones are
// built from Doc and Env.
type Factory struct {
	Logger *slog.Logger
	Doc    *config.Document
	Env    config.EnvConfig

	Fetcher     archive.Fetcher
	Lookup      tmdb.Lookup
	EmailSender email.Sender
	Store       tracker.Store
}

func NewFromEnvConfig(logger *slog.Logger, doc *config.Document, env config.EnvConfig) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{Logger: logger, Doc: doc, Env: env}
}

// Build returns the runner and a close function for the resources it opened.
func (f *Factory) Build(ctx context.Context, opts Options) (*runner.Runner, func() error, error) {
	if f.Doc == nil {
		return nil, nil, fmt.Errorf("configuration document is required")
	}
	doc := f.Doc

	sel, err := selector.New(selector.NewPolicy(doc.Policy.PolicyOptions(ctx, opts.ExtraGenres)), f.lookup())
	if err != nil {
		return nil, nil, fmt.Errorf("build selector: %w", err)
	}
	policy := sel.Policy()
	f.Logger.Info("selection policy",
		"classes", policy.EnabledClasses(),
		"required_genres", policy.RequiredGenres(),
		"skip_rule", policy.SkipRule() != "",
	)

	store, closeStore, err := f.store()
	if err != nil {
		return nil, nil, err
	}

	dryRun := opts.DryRun
	var transport dispatcher.Transport
	if !dryRun {
		if doc.Email.IsEnabled() {
			transport, err = f.mailer()
			if err != nil {
				_ = closeStore()
				return nil, nil, err
			}
		} else {
			f.Logger.Warn("email delivery disabled; runs are download-only")
			dryRun = true
		}
	}

	pages := doc.Archive.Pages
	if opts.Pages > 0 {
		pages = opts.Pages
	}
	snapshotPath := doc.Snapshot.Path
	if opts.SnapshotPath != "" {
		snapshotPath = opts.SnapshotPath
	}

	baseURL := doc.Archive.BaseURL
	deps := runner.Deps{
		Fetcher:     f.fetcher(),
		Listing:     listingParser(doc.Archive.Format),
		YearListing: archiveimpl.NewYearParser(),
		YearURL:     func(year int) string { return archiveimpl.YearURL(baseURL, year) },
		Items:       archiveimpl.NewItemParser(baseURL),
		Selector:    sel,
		Artifacts: artifacts.NewStore(doc.Downloads.Dir, artifacts.Options{
			Timeout:   doc.Downloads.TimeoutDuration(),
			UserAgent: f.Env.Archive.UserAgent,
			Overwrite: opts.StartFresh,
		}),
		Store:     store,
		Transport: transport,
	}

	r, err := runner.New(f.Logger, runner.Config{
		LatestURL:        doc.Archive.LatestURL,
		Pages:            pages,
		DryRun:           dryRun,
		StartFresh:       opts.StartFresh,
		HistoryLimit:     doc.Tracker.HistoryLimit,
		Dispatch:         f.dispatchConfig(),
		ThumbnailWidth:   doc.Downloads.ThumbnailWidth,
		ThumbnailQuality: doc.Downloads.ThumbnailQuality,
		SnapshotSave:     opts.SnapshotSave || doc.Snapshot.Save,
		SnapshotRestore:  opts.SnapshotRestore || doc.Snapshot.Restore,
		SnapshotPath:     snapshotPath,
	}, deps)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return r, closeStore, nil
}

func (f *Factory) fetcher() archive.Fetcher {
	if f.Fetcher != nil {
		return f.Fetcher
	}
	return archiveimpl.NewFetcher(archiveimpl.FetcherOptions{
		Timeout:     f.Env.Archive.HTTPTimeout,
		UserAgent:   f.Env.Archive.UserAgent,
		MinInterval: f.Doc.Archive.MinIntervalDuration(),
	})
}

func listingParser(format string) archive.ListingParser {
	if format == "atom" {
		return archiveimpl.NewFeedParser()
	}
	return archiveimpl.NewLatestParser()
}

func (f *Factory) lookup() tmdb.Lookup {
	if f.Lookup != nil {
		return f.Lookup
	}
	if f.Env.TMDb.APIKey == "" {
		f.Logger.Warn("TMDB_API_KEY not set; genre filtering disabled")
		return nil
	}
	return tmdbimpl.NewClient(f.Env.TMDb.HTTPTimeout, "", f.Env.TMDb.BaseURL, f.Env.TMDb.APIKey)
}

func (f *Factory) store() (tracker.Store, func() error, error) {
	if f.Store != nil {
		return f.Store, func() error { return nil }, nil
	}
	cfg := f.Doc.Tracker
	var (
		store tracker.Store
		err   error
	)
	switch cfg.Backend {
	case "sqlite":
		store, err = tracker.NewSQLiteStore(cfg.Path, cfg.Table)
	case "badger":
		store, err = tracker.NewBadgerStore(cfg.Path)
	default:
		store, err = tracker.NewFileStore(cfg.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s tracker store: %w", cfg.Backend, err)
	}
	return store, store.Close, nil
}

func (f *Factory) mailer() (*digest.Mailer, error) {
	sender := f.EmailSender
	if sender == nil {
		smtpCfg := smtp.Config{
			Host:               f.Env.SMTP.Host,
			Port:               f.Env.SMTP.Port,
			Username:           f.Env.SMTP.User,
			Password:           f.Env.SMTP.Password,
			TLSMode:            f.Env.SMTP.TLSMode,
			InsecureSkipVerify: f.Env.SMTP.InsecureSkipVerify,
		}
		if err := smtpCfg.Validate(); err != nil {
			return nil, err
		}
		sender = smtp.NewSender(smtpCfg)
	}
	from := f.Doc.Email.From
	if from == "" {
		from = f.Env.Email.From
	}
	to := f.Doc.Email.To
	if to == "" {
		to = f.Env.Email.To
	}
	return digest.NewMailer(sender, digest.Options{
		From:          from,
		To:            to,
		SubjectPrefix: f.Doc.Email.SubjectPrefix,
	})
}

func (f *Factory) dispatchConfig() dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	sizeMB := f.Doc.Email.MaxSizeMB
	if sizeMB <= 0 {
		sizeMB = f.Env.Email.MaxSizeMB
	}
	if sizeMB > 0 {
		cfg.SizeBudget = int64(sizeMB) << 20
	}
	if f.Doc.Email.MaxRetries != nil {
		cfg.MaxRetries = *f.Doc.Email.MaxRetries
	}
	cfg.BackoffUnit = f.Doc.Email.RetryDelayDuration(cfg.BackoffUnit)
	cfg.PersistEachBatch = f.Doc.Tracker.PersistEachBatch
	return cfg
}
