// Package runner executes one digest run end to end: load the digest state,
// crawl to the boundary, select and store one artifact per item, dispatch the
// batches and save the state once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/posterdigest/internal/artifacts"
	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/crawler"
	"github.com/bakkerme/posterdigest/internal/dispatcher"
	"github.com/bakkerme/posterdigest/internal/observability/otelx"
	"github.com/bakkerme/posterdigest/internal/runner/snapshot"
	"github.com/bakkerme/posterdigest/internal/selector"
	"github.com/bakkerme/posterdigest/internal/sources/archive"
	"github.com/bakkerme/posterdigest/internal/tracker"
	"github.com/bakkerme/posterdigest/internal/trigger"
)

// ErrBusy is returned when a run is requested while another one is in progress.
var ErrBusy = errors.New("runner: a run is already in progress")

// Outcome kinds recorded for items that never reached the selector.
const (
	outcomeFetchFailed    = "fetch_failed"
	outcomeParseFailed    = "parse_failed"
	outcomeNoVariants     = "no_variants"
	outcomeDownloadFailed = "download_failed"
)

// ArtifactStore keeps local copies of selected artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, artifact core.Artifact) (artifacts.Stored, error)
	Clear() error
}

type Config struct {
	LatestURL string
	Pages     int
	// DryRun crawls, selects and stores but never delivers or saves state.
	DryRun bool
	// StartFresh clears the digest state and the artifact store before the run.
	StartFresh       bool
	HistoryLimit     int
	Dispatch         dispatcher.Config
	ThumbnailWidth   int
	ThumbnailQuality int
	SnapshotSave     bool
	SnapshotRestore  bool
	SnapshotPath     string
}

// Deps are the collaborators a run uses. Transport may be nil only in dry-run
// mode. YearURL and YearListing are only needed by Backfill.
type Deps struct {
	Fetcher     archive.Fetcher
	Listing     archive.ListingParser
	YearListing archive.ListingParser
	YearURL     func(year int) string
	Items       archive.ItemParser
	Selector    *selector.Selector
	Artifacts   ArtifactStore
	Store       tracker.Store
	Transport   dispatcher.Transport
}

// Status is what the runner reports between runs.
type Status struct {
	Running      bool       `json:"running"`
	LastRun      *core.Run  `json:"last_run,omitempty"`
	Sent         int        `json:"sent"`
	Ignored      int        `json:"ignored"`
	StateSavedAt *time.Time `json:"state_saved_at,omitempty"`
}

type Runner struct {
	logger *slog.Logger
	config Config
	deps   Deps

	mu        sync.Mutex // held for the duration of a run
	running   atomic.Bool
	statusMu  sync.Mutex
	status    Status
	thumbnail func(path string) ([]byte, error)
	now       func() time.Time
}

func New(logger *slog.Logger, config Config, deps Deps) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Fetcher == nil || deps.Listing == nil || deps.Items == nil || deps.Selector == nil {
		return nil, fmt.Errorf("runner: fetcher, listing parser, item parser and selector are required")
	}
	if deps.Artifacts == nil {
		return nil, fmt.Errorf("runner: artifact store is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("runner: tracker store is required")
	}
	if deps.Transport == nil && !config.DryRun {
		return nil, fmt.Errorf("runner: transport is required unless dry run is enabled")
	}
	if config.Pages <= 0 {
		config.Pages = 1
	}
	r := &Runner{
		logger: logger,
		config: config,
		deps:   deps,
		now:    time.Now,
	}
	r.thumbnail = func(path string) ([]byte, error) {
		return artifacts.Thumbnail(path, r.config.ThumbnailWidth, r.config.ThumbnailQuality)
	}
	return r, nil
}

// Start runs on every trigger event until ctx is done. Events that arrive
// while a run is in progress are dropped.
func (r *Runner) Start(ctx context.Context, events <-chan trigger.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.logger.Info("trigger event", "time", event.Timestamp)
			if _, err := r.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrBusy) {
					r.logger.Warn("trigger skipped; previous run still in progress")
					continue
				}
				r.logger.Error("digest run failed", "error", err)
			}
		}
	}
}

// Go starts a run in the background. It returns ErrBusy without starting
// anything if a run is already in progress.
func (r *Runner) Go(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrBusy
	}
	go func() {
		defer r.mu.Unlock()
		if _, err := r.runDigest(ctx); err != nil {
			r.logger.Error("digest run failed", "error", err)
		}
	}()
	return nil
}

// RunOnce performs one digest run. The returned run is non-nil whenever the
// run got started, including on error.
func (r *Runner) RunOnce(ctx context.Context) (*core.Run, error) {
	if !r.mu.TryLock() {
		return nil, ErrBusy
	}
	defer r.mu.Unlock()
	return r.runDigest(ctx)
}

func (r *Runner) Status() Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	status := r.status
	status.Running = r.running.Load()
	return status
}

func (r *Runner) runDigest(ctx context.Context) (*core.Run, error) {
	mode := core.RunModeDigest
	if r.config.DryRun {
		mode = core.RunModeDryRun
	}
	run, ctx, span := r.begin(ctx, mode)
	logger := core.LoggerFromContext(ctx)
	defer r.running.Store(false)

	tr, err := tracker.Open(ctx, r.deps.Store, r.config.HistoryLimit)
	if err != nil {
		return r.finish(ctx, span, run, nil, err)
	}
	if r.config.StartFresh {
		logger.Info("starting fresh: clearing digest state and downloads")
		tr.Reset()
		if err := r.deps.Artifacts.Clear(); err != nil {
			return r.finish(ctx, span, run, tr, err)
		}
	}

	ids, stop, err := r.discover(ctx, run, r.config.LatestURL, r.config.Pages, tr.KnownIDs())
	if err != nil {
		return r.finish(ctx, span, run, tr, err)
	}

	selected, ignored, entries, err := r.processItems(ctx, run, ids)
	r.saveSnapshot(ctx, run, stop, entries)
	if err != nil {
		return r.finish(ctx, span, run, tr, err)
	}

	if r.config.DryRun {
		logger.Info("dry run: skipping delivery and state save", "selected", len(selected), "ignored", len(ignored))
		return r.finish(ctx, span, run, tr, nil)
	}

	dispatchCtx, dispatchSpan := otelx.Start(ctx, "dispatch", attribute.Int("artifacts", len(selected)))
	d := dispatcher.New(r.config.Dispatch, r.deps.Transport, tr)
	report := d.Dispatch(dispatchCtx, oldestFirst(selected), ignored)
	otelx.End(dispatchSpan, report.Err)
	run.Batches = report.Batches
	run.Delivered = report.Delivered
	run.SentIDs = report.SentIDs
	run.IgnoredIDs = report.IgnoredIDs

	// Committed state is saved even when the run was interrupted.
	if saveErr := tr.Save(context.WithoutCancel(ctx)); saveErr != nil {
		run.AddError("tracker", "", saveErr)
		if report.Err == nil {
			return r.finish(ctx, span, run, tr, fmt.Errorf("save digest state: %w", saveErr))
		}
	}
	return r.finish(ctx, span, run, tr, report.Err)
}

// Backfill downloads the selected artifact of every item on a year page. It
// never delivers and never touches the digest state.
func (r *Runner) Backfill(ctx context.Context, year int) (*core.Run, error) {
	if r.deps.YearListing == nil || r.deps.YearURL == nil {
		return nil, fmt.Errorf("runner: backfill needs a year listing parser and url")
	}
	if !r.mu.TryLock() {
		return nil, ErrBusy
	}
	defer r.mu.Unlock()

	run, ctx, span := r.begin(ctx, core.RunModeBackfill)
	defer r.running.Store(false)

	startURL := r.deps.YearURL(year)
	c := crawler.New(r.deps.Fetcher, r.deps.YearListing)
	result, err := c.Crawl(ctx, startURL, 1, nil)
	run.StopReason = string(result.Stop)
	run.Pages = result.Pages
	run.Discovered = len(result.IDs)
	if err != nil {
		return r.finish(ctx, span, run, nil, err)
	}
	if result.Err != nil {
		run.AddError("crawl", startURL, result.Err)
	}
	_, _, _, err = r.processItems(ctx, run, result.IDs)
	return r.finish(ctx, span, run, nil, err)
}

func (r *Runner) begin(ctx context.Context, mode core.RunMode) (*core.Run, context.Context, trace.Span) {
	r.running.Store(true)
	run := &core.Run{
		ID:        uuid.NewString(),
		StartedAt: r.now().UTC(),
		Status:    core.RunStatusRunning,
		Mode:      mode,
	}
	ctx = core.WithRunLogger(ctx, r.logger, run.ID)
	ctx, span := otelx.Start(ctx, "posterdigest.run",
		attribute.String("run.id", run.ID),
		attribute.String("run.mode", string(mode)),
	)
	core.LoggerFromContext(ctx).Info("run started", "mode", mode)
	return run, ctx, span
}

// discover returns the ids to process, either crawled from startURL or
// replayed from a snapshot.
func (r *Runner) discover(ctx context.Context, run *core.Run, startURL string, pages int, boundary map[string]struct{}) ([]string, string, error) {
	logger := core.LoggerFromContext(ctx)
	if r.config.SnapshotRestore {
		payload, err := snapshot.Load(r.config.SnapshotPath)
		if err != nil {
			return nil, "", err
		}
		ids := make([]string, 0, len(payload.Entries))
		for _, id := range payload.IDs() {
			if _, known := boundary[id]; known {
				continue
			}
			ids = append(ids, id)
		}
		run.StopReason = "snapshot"
		run.Discovered = len(ids)
		logger.Info("replaying snapshot", "path", r.config.SnapshotPath, "ids", len(ids), "snapshot_run_id", payload.RunID)
		return ids, run.StopReason, nil
	}

	crawlCtx, span := otelx.Start(ctx, "crawl", attribute.String("start_url", startURL), attribute.Int("max_pages", pages))
	result, err := crawler.New(r.deps.Fetcher, r.deps.Listing).Crawl(crawlCtx, startURL, pages, boundary)
	otelx.End(span, err)
	run.StopReason = string(result.Stop)
	run.Pages = result.Pages
	run.Discovered = len(result.IDs)
	if err != nil {
		return nil, run.StopReason, err
	}
	if result.Err != nil {
		// The partial list is still processed.
		run.AddError("crawl", startURL, result.Err)
	}
	logger.Info("crawl finished", "ids", len(result.IDs), "pages", result.Pages, "stop", result.Stop)
	return result.IDs, run.StopReason, nil
}

// processItems fetches, parses, selects and stores each id in order. Ids that
// do not end in a stored artifact come back as ignored.
func (r *Runner) processItems(ctx context.Context, run *core.Run, ids []string) ([]core.Artifact, []core.IgnoredItem, []snapshot.Entry, error) {
	ctx, span := otelx.Start(ctx, "select", attribute.Int("ids", len(ids)))
	var (
		selected []core.Artifact
		ignored  []core.IgnoredItem
		entries  []snapshot.Entry
	)
	ignore := func(id string, position int, reason string) {
		ignored = append(ignored, core.IgnoredItem{ID: id, Position: position, Reason: reason})
		entries = append(entries, snapshot.Entry{ID: id, Position: position, Outcome: reason})
		run.CountOutcome(reason)
	}

	for position, id := range ids {
		if err := ctx.Err(); err != nil {
			otelx.End(span, err)
			return selected, ignored, entries, err
		}
		artifact, reason, err := r.processItem(ctx, run, id, position)
		if err != nil && ctx.Err() != nil {
			otelx.End(span, ctx.Err())
			return selected, ignored, entries, ctx.Err()
		}
		if artifact == nil {
			ignore(id, position, reason)
			continue
		}
		selected = append(selected, *artifact)
		entries = append(entries, snapshot.Entry{
			ID: id, Position: position, Outcome: string(selector.Selected),
			Class: string(artifact.Class), Path: artifact.LocalPath,
		})
		run.CountOutcome(string(selector.Selected))
	}
	otelx.End(span, nil)
	return selected, ignored, entries, nil
}

// processItem returns the stored artifact, or nil and the reason the item is
// ignored.
func (r *Runner) processItem(ctx context.Context, run *core.Run, id string, position int) (*core.Artifact, string, error) {
	logger := core.LoggerFromContext(ctx).With("id", id, "position", position)

	body, err := r.deps.Fetcher.Fetch(ctx, id, archive.FetchOptions{})
	if err != nil {
		logger.Warn("item page fetch failed; ignoring item", "error", err)
		run.AddError("item", id, err)
		return nil, outcomeFetchFailed, err
	}
	item, err := r.deps.Items.ParseItem(id, body)
	if err != nil {
		reason := outcomeParseFailed
		if errors.Is(err, archive.ErrNoVariants) {
			reason = outcomeNoVariants
		}
		logger.Warn("item page could not be parsed; ignoring item", "error", err)
		run.AddError("item", id, err)
		return nil, reason, nil
	}
	item.ID = id
	item.Position = position

	outcome := r.deps.Selector.Select(ctx, item)
	if outcome.Kind != selector.Selected || outcome.Artifact == nil {
		return nil, string(outcome.Kind), nil
	}

	artifact := *outcome.Artifact
	stored, err := r.deps.Artifacts.Put(ctx, artifact)
	if err != nil {
		logger.Warn("artifact download failed; ignoring item", "url", artifact.URL, "error", err)
		run.AddError("store", id, err)
		return nil, outcomeDownloadFailed, err
	}
	if stored.Existed {
		run.Existing++
	} else {
		run.Downloaded++
	}
	artifact.LocalPath = stored.Path
	artifact.Existed = stored.Existed
	artifact.ContentType = stored.ContentType

	thumb, err := r.thumbnail(stored.Path)
	if err != nil {
		logger.Warn("thumbnail failed; estimating size from the file", "path", stored.Path, "error", err)
		thumb = nil
	}
	artifact.Thumbnail = thumb
	artifact.EstimatedSize = artifacts.EstimateSize(thumb, stored.Size)
	return &artifact, "", nil
}

func (r *Runner) saveSnapshot(ctx context.Context, run *core.Run, stop string, entries []snapshot.Entry) {
	if !r.config.SnapshotSave {
		return
	}
	payload := snapshot.Payload{
		RunID:      run.ID,
		CreatedAt:  r.now().UTC(),
		StartURL:   r.config.LatestURL,
		StopReason: stop,
		Entries:    entries,
	}
	if err := snapshot.Save(r.config.SnapshotPath, payload); err != nil {
		core.LoggerFromContext(ctx).Warn("failed to save snapshot", "path", r.config.SnapshotPath, "error", err)
		return
	}
	core.LoggerFromContext(ctx).Info("snapshot saved", "path", r.config.SnapshotPath, "entries", len(entries))
}

func (r *Runner) finish(ctx context.Context, span trace.Span, run *core.Run, tr *tracker.Tracker, err error) (*core.Run, error) {
	completedAt := r.now().UTC()
	run.CompletedAt = &completedAt
	switch {
	case err != nil && ctx.Err() != nil:
		run.Status = core.RunStatusCancelled
	case err != nil:
		run.Status = core.RunStatusFailed
	case len(run.Errors) > 0:
		run.Status = core.RunStatusPartial
	default:
		run.Status = core.RunStatusCompleted
	}
	otelx.End(span, err)

	logger := core.LoggerFromContext(ctx)
	attrs := []any{
		"status", run.Status,
		"stop", run.StopReason,
		"discovered", run.Discovered,
		"downloaded", run.Downloaded,
		"existing", run.Existing,
		"batches", run.Batches,
		"delivered", run.Delivered,
		"outcomes", run.Outcomes,
		"duration", completedAt.Sub(run.StartedAt),
	}
	if err != nil {
		logger.Error("run finished with error", append(attrs, "error", err)...)
	} else {
		logger.Info("run finished", attrs...)
	}

	r.statusMu.Lock()
	r.status.LastRun = run
	if tr != nil {
		r.status.Sent = len(tr.Sent())
		r.status.Ignored = len(tr.Ignored())
		r.status.StateSavedAt = tr.LastRun()
	}
	r.statusMu.Unlock()
	return run, err
}

// oldestFirst orders artifacts by descending position (0 is newest).
func oldestFirst(selected []core.Artifact) []core.Artifact {
	out := append([]core.Artifact(nil), selected...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out
}
