// Package dispatcher groups selected artifacts into size-bounded batches,
// delivers them in order with bounded retries and commits each delivered
// batch back to the tracker.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/retry"
)

const (
	DefaultSizeBudget  int64 = 40 << 20 // 40 MB, a common mailbox limit
	DefaultMaxRetries        = 2
	DefaultBackoffUnit       = 5 * time.Second
)

// ErrDeliveryFailed marks a dispatch that stopped because a batch exhausted its retries.
var ErrDeliveryFailed = errors.New("dispatcher: delivery failed")

// Transport delivers one batch. A nil error is a transport-reported success.
type Transport interface {
	Deliver(ctx context.Context, batch Batch) error
}

// Committer receives the ids the dispatcher commits. ids are oldest→newest.
type Committer interface {
	RecordSent(ids []string)
	RecordIgnored(ids []string)
	Save(ctx context.Context) error
}

type Config struct {
	SizeBudget int64
	// MaxRetries counts retries after the first attempt.
	MaxRetries  int
	BackoffUnit time.Duration
	// PersistEachBatch saves the committer after every delivered batch.
	PersistEachBatch bool
}

func DefaultConfig() Config {
	return Config{
		SizeBudget:  DefaultSizeBudget,
		MaxRetries:  DefaultMaxRetries,
		BackoffUnit: DefaultBackoffUnit,
	}
}

// Report summarizes one dispatch.
type Report struct {
	Batches    int
	Delivered  int
	SentIDs    []string
	IgnoredIDs []string
	// Undelivered counts artifacts in the failed batch and every batch after it.
	Undelivered int
	// PendingIgnored counts ignored ids held back because undelivered
	// artifacts are older than them.
	PendingIgnored int
	Err            error
}

type Dispatcher struct {
	config    Config
	transport Transport
	committer Committer
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(config Config, transport Transport, committer Committer) *Dispatcher {
	if config.SizeBudget <= 0 {
		config.SizeBudget = DefaultSizeBudget
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Dispatcher{config: config, transport: transport, committer: committer}
}

// Dispatch delivers artifacts (ordered oldest→newest) batch by batch. The
// first batch that exhausts its retries stops the dispatch; nothing from it
// or later batches is committed. Ignored ids are committed only once every
// undelivered artifact is newer than them.
func (d *Dispatcher) Dispatch(ctx context.Context, artifacts []core.Artifact, ignored []core.IgnoredItem) Report {
	logger := core.LoggerFromContext(ctx)
	batches := Plan(artifacts, d.config.SizeBudget)
	report := Report{Batches: len(batches)}
	pending := oldestFirst(ignored)

	// Before any delivery every artifact is undelivered.
	pending = d.commitIgnored(pending, artifacts, &report)

	for i, batch := range batches {
		logger.Info("delivering batch",
			"batch", batch.Index,
			"total", batch.Total,
			"artifacts", len(batch.Artifacts),
			"estimated_bytes", batch.Size(),
		)
		if err := d.deliver(ctx, batch); err != nil {
			for _, rest := range batches[i:] {
				report.Undelivered += len(rest.Artifacts)
			}
			report.PendingIgnored = len(pending)
			report.Err = fmt.Errorf("%w: batch %d of %d: %w", ErrDeliveryFailed, batch.Index, batch.Total, err)
			logger.Error("batch delivery failed; remaining batches not attempted",
				"batch", batch.Index,
				"total", batch.Total,
				"remaining", len(batches)-i,
				"error", err,
			)
			return report
		}

		ids := batch.IDs()
		d.committer.RecordSent(ids)
		report.Delivered++
		report.SentIDs = append(report.SentIDs, ids...)
		logger.Info("batch delivered", "batch", batch.Index, "total", batch.Total)

		pending = d.commitIgnored(pending, remaining(batches[i+1:]), &report)
		if d.config.PersistEachBatch {
			if err := d.committer.Save(ctx); err != nil {
				logger.Warn("failed to persist state after batch", "batch", batch.Index, "error", err)
			}
		}
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, batch Batch) error {
	logger := core.LoggerFromContext(ctx)
	return retry.Do(ctx, retry.Config{
		Attempts: d.config.MaxRetries + 1,
		Backoff:  retry.Linear(d.config.BackoffUnit),
		Sleep:    d.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("batch delivery attempt failed; retrying",
				"batch", batch.Index,
				"attempt", attempt,
				"max_attempts", d.config.MaxRetries+1,
				"delay", delay,
				"error", err,
			)
		},
	}, func() error {
		return d.transport.Deliver(ctx, batch)
	})
}

// commitIgnored records the pending ignored ids that are older than every
// undelivered artifact and returns the ones still held back. pending is
// oldest→newest, so the committable ones form a prefix.
func (d *Dispatcher) commitIgnored(pending []core.IgnoredItem, undelivered []core.Artifact, report *Report) []core.IgnoredItem {
	if len(pending) == 0 {
		return pending
	}
	oldestUndelivered := -1
	for _, artifact := range undelivered {
		if artifact.Position > oldestUndelivered {
			oldestUndelivered = artifact.Position
		}
	}
	n := 0
	for n < len(pending) && pending[n].Position > oldestUndelivered {
		n++
	}
	if n == 0 {
		return pending
	}
	ids := make([]string, 0, n)
	for _, item := range pending[:n] {
		ids = append(ids, item.ID)
	}
	d.committer.RecordIgnored(ids)
	report.IgnoredIDs = append(report.IgnoredIDs, ids...)
	return pending[n:]
}

func remaining(batches []Batch) []core.Artifact {
	var out []core.Artifact
	for _, batch := range batches {
		out = append(out, batch.Artifacts...)
	}
	return out
}

// oldestFirst orders ignored items by descending position (0 is newest).
func oldestFirst(ignored []core.IgnoredItem) []core.IgnoredItem {
	out := make([]core.IgnoredItem, 0, len(ignored))
	for _, item := range ignored {
		if item.ID != "" {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out
}
