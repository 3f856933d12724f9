package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bakkerme/posterdigest/internal/api"
	"github.com/bakkerme/posterdigest/internal/config"
	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/observability/otelx"
	"github.com/bakkerme/posterdigest/internal/runner"
	"github.com/bakkerme/posterdigest/internal/runner/factory"
	"github.com/bakkerme/posterdigest/internal/trigger"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func main() {
	if err := config.LoadDotEnv(os.Getenv("POSTERDIGEST_DOTENV")); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	env := config.LoadEnv()

	var genres stringList
	configPath := flag.String("config", env.ConfigPath, "path to posterdigest document")
	pages := flag.Int("pages", 0, "number of listing pages to crawl (overrides the document)")
	year := flag.Int("year", 0, "download every poster of a year instead of sending a digest")
	flag.Var(&genres, "genre", "required genre (repeatable)")
	startFresh := flag.Bool("start-fresh", false, "forget digest state and re-download everything")
	dryRun := flag.Bool("dry-run", false, "download only; send nothing and keep the state untouched")
	daemon := flag.Bool("daemon", !env.RunOnce, "run on the configured schedule")
	listen := flag.String("listen", "", "address for the status API in daemon mode")
	snapshotSave := flag.Bool("snapshot-save", false, "save the run's selection to a snapshot")
	snapshotRestore := flag.Bool("snapshot-restore", false, "replay the saved snapshot instead of crawling")
	snapshotPath := flag.String("snapshot-path", "", "snapshot file (overrides the document)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	doc, err := config.LoadDocument(*configPath)
	if err != nil {
		log.Fatalf("failed to load document: %v", err)
	}
	if *snapshotSave && *snapshotRestore {
		log.Fatalf("--snapshot-save and --snapshot-restore are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = core.WithLogger(ctx, logger)

	shutdownOTel, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	f := factory.NewFromEnvConfig(logger, doc, env)
	r, closeStore, err := f.Build(ctx, factory.Options{
		Pages:           *pages,
		ExtraGenres:     genres,
		DryRun:          *dryRun,
		StartFresh:      *startFresh,
		SnapshotSave:    *snapshotSave,
		SnapshotRestore: *snapshotRestore,
		SnapshotPath:    *snapshotPath,
	})
	if err != nil {
		log.Fatalf("failed to build runner: %v", err)
	}
	defer closeStore()

	switch {
	case *year > 0:
		if _, err := r.Backfill(ctx, *year); err != nil {
			log.Fatalf("backfill failed: %v", err)
		}
	case *daemon:
		addr := *listen
		if addr == "" {
			addr = doc.Schedule.Listen
		}
		if err := runDaemon(ctx, logger, r, doc.Schedule, addr); err != nil {
			log.Fatalf("daemon failed: %v", err)
		}
	default:
		if _, err := r.RunOnce(ctx); err != nil {
			log.Fatalf("run failed: %v", err)
		}
	}
}

func runDaemon(ctx context.Context, logger *slog.Logger, r *runner.Runner, schedule config.ScheduleConfig, addr string) error {
	if schedule.Cron == "" && addr == "" {
		return errors.New("daemon mode needs schedule.cron or a listen address")
	}

	var (
		events   <-chan trigger.Event
		nextRun  api.Schedule
		cronTrig *trigger.Cron
	)
	if schedule.Cron != "" {
		cronTrig = trigger.NewCron(schedule.Cron, schedule.Timezone)
		ch, err := cronTrig.Start(ctx)
		if err != nil {
			return err
		}
		defer cronTrig.Stop()
		events = ch
		nextRun = cronTrig
		if next, err := cronTrig.Next(time.Now()); err == nil {
			logger.Info("digest scheduled", "cron", schedule.Cron, "next_run", next)
		}
	}

	if addr != "" {
		server := api.NewServer(ctx, logger, r, nextRun)
		go func() {
			if err := server.Start(addr); err != nil {
				logger.Error("status API stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	r.Start(ctx, events)
	// Give an in-flight run the chance to persist state.
	time.Sleep(200 * time.Millisecond)
	return nil
}
