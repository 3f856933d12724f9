package factory

import (
	"bytes"
	"context"
	"os"
	"strings"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bakkerme/posterdigest/internal/config"
	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/outputs/email/mock"
	archiveimpl "github.com/bakkerme/posterdigest/internal/sources/archive/impl"
	archivemock "github.com/bakkerme/posterdigest/internal/sources/archive/mock"
	"github.com/bakkerme/posterdigest/internal/tracker"
)

func testDoc(t *testing.T) *config.Document {
	t.Helper()
	dir := t.TempDir()
	doc := &config.Document{}
	doc.Downloads.Dir = filepath.Join(dir, "downloads")
	doc.Tracker.Path = filepath.Join(dir, "digest_state.json")
	doc.Policy.ResolutionFile = filepath.Join(dir, "missing_res.yaml")
	doc.Policy.GenreFile = filepath.Join(dir, "missing_genre.yaml")
	doc.Email.To = "me@example.com"
	doc.ApplyDefaults()
	return doc
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchConfig(t *testing.T) {
	doc := testDoc(t)
	retries := 4
	doc.Email.MaxRetries = &retries
	doc.Email.RetryDelay = "2s"
	doc.Tracker.PersistEachBatch = true
	f := NewFromEnvConfig(quietLogger(), doc, config.EnvConfig{Email: config.EmailEnvConfig{MaxSizeMB: 10}})

	cfg := f.dispatchConfig()
	if cfg.SizeBudget != 10<<20 || cfg.MaxRetries != 4 || cfg.BackoffUnit != 2*time.Second || !cfg.PersistEachBatch {
		t.Fatalf("unexpected dispatch config %+v", cfg)
	}

	doc.Email.MaxSizeMB = 25
	if got := f.dispatchConfig().SizeBudget; got != 25<<20 {
		t.Fatalf("document size should win over env, got %d", got)
	}
}

func TestStoreBackends(t *testing.T) {
	for _, backend := range []string{"file", "sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			doc := testDoc(t)
			doc.Tracker.Backend = backend
			doc.Tracker.Path = filepath.Join(t.TempDir(), "state")
			f := NewFromEnvConfig(quietLogger(), doc, config.EnvConfig{})

			store, closeStore, err := f.store()
			if err != nil {
				t.Fatalf("store() error = %v", err)
			}
			defer closeStore()
			if err := store.Save(context.Background(), tracker.State{Sent: []string{"a"}}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			state, err := store.Load(context.Background())
			if err != nil || len(state.Sent) != 1 || state.Sent[0] != "a" {
				t.Fatalf("Load() = %+v, %v", state, err)
			}
		})
	}
}

func TestBuildRunsWithInjectedCollaborators(t *testing.T) {
	doc := testDoc(t)
	sender := &mock.Sender{}
	page := []byte("<html></html>")
	f := NewFromEnvConfig(quietLogger(), doc, config.EnvConfig{})
	f.EmailSender = sender
	f.Fetcher = &archivemock.Fetcher{BodyByURL: map[string][]byte{doc.Archive.LatestURL: page}}

	r, closeFn, err := f.Build(context.Background(), Options{Pages: 2})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer closeFn()

	// The real latest-page parser finds no items in an empty page.
	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if run.Discovered != 0 || run.Status != core.RunStatusCompleted {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(sender.Messages) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestBuildDisabledEmailIsDownloadOnly(t *testing.T) {
	doc := testDoc(t)
	disabled := false
	doc.Email.Enabled = &disabled
	doc.Email.To = ""
	f := NewFromEnvConfig(quietLogger(), doc, config.EnvConfig{})
	f.Fetcher = &archivemock.Fetcher{}

	r, closeFn, err := f.Build(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer closeFn()
	run, _ := r.RunOnce(context.Background())
	if run == nil || run.Mode != core.RunModeDryRun {
		t.Fatalf("expected a dry run, got %+v", run)
	}
}

func TestListingParserByFormat(t *testing.T) {
	if _, ok := listingParser("atom").(*archiveimpl.FeedParser); !ok {
		t.Fatalf("atom format should use the feed parser")
	}
	if _, ok := listingParser("html").(*archiveimpl.LatestParser); !ok {
		t.Fatalf("html format should use the latest-page parser")
	}
}

func TestBuildLogsEffectivePolicy(t *testing.T) {
	doc := testDoc(t)
	if err := os.WriteFile(doc.Policy.ResolutionFile, []byte("resolutions:\n  XXXLG: {allow: false}\n  LG: {allow: false}\n"), 0o644); err != nil {
		t.Fatalf("write resolution file: %v", err)
	}
	var logs bytes.Buffer
	f := NewFromEnvConfig(slog.New(slog.NewTextHandler(&logs, nil)), doc, config.EnvConfig{})
	f.EmailSender = &mock.Sender{}
	f.Fetcher = &archivemock.Fetcher{}

	_, closeFn, err := f.Build(context.Background(), Options{ExtraGenres: []string{"Drama"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer closeFn()
	out := logs.String()
	if !strings.Contains(out, "selection policy") || !strings.Contains(out, "classes=\"[XXLG XLG]\"") || !strings.Contains(out, "Drama") {
		t.Fatalf("policy not logged as expected:\n%s", out)
	}
}
