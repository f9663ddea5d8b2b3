package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"outreachd/internal/api"
	"outreachd/internal/config"
	"outreachd/internal/domain"
	"outreachd/internal/handlers/httpsource"
	"outreachd/internal/handlers/webhook"
	"outreachd/internal/ledger"
	"outreachd/internal/metrics"
	"outreachd/internal/poller"
	"outreachd/internal/report"
	"outreachd/internal/scheduler"
	"outreachd/internal/seen"
	"outreachd/internal/window"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discovery daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(serveConfigPath)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "outreachd.toml", "path to TOML config file")
}

func serve(configPath string) error {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDB(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	led := ledger.NewStore(db)
	seenStore := seen.NewStore(db)
	filter := window.New(seenStore, led)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sched := scheduler.NewService()
	for _, jc := range cfg.Jobs {
		job := poller.New(poller.Config{
			TaskID:     jc.ID,
			ActionType: domain.ActionType(jc.ActionType),
			Lookback:   time.Duration(jc.LookbackMinutes) * time.Minute,
			Source:     httpsource.New(jc.SourceURL, time.Duration(jc.TimeoutSeconds)*time.Second),
			Performer:  webhook.New(jc.ActionURL, time.Duration(jc.TimeoutSeconds)*time.Second),
			Ledger:     led,
			Seen:       seenStore,
			Filter:     filter,
			Predicate:  jobPredicate(jc, cfg.Discovery.OrgDomain),
			Metrics:    m,
		})
		sched.Schedule(jc.ID, jc.Name, time.Duration(jc.IntervalMinutes)*time.Minute, job.Run)
	}

	if cfg.Report.Cron != "" {
		if err := sched.ScheduleCron("daily-report", "Daily action report", cfg.Report.Cron, func(ctx context.Context) error {
			rep, err := report.Build(ctx, led, seenStore, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Info().
				Str("date", rep.Date).
				Int("pending", len(rep.Pending)).
				Int("seen_total", rep.SeenTotal).
				Interface("counts", rep.Counts).
				Msg("daily action report")
			return nil
		}); err != nil {
			return fmt.Errorf("schedule daily report: %w", err)
		}
		if next, err := scheduler.NextRunTime(cfg.Report.Cron, time.Now()); err == nil {
			log.Info().Time("next_run", next).Msg("daily report scheduled")
		}
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServerWithDebug(sched, led, seenStore, reg, cfg.Server.Debug),
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")

	sched.StopAll()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	return nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := ledger.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	if err := seen.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure seen schema: %w", err)
	}
	return db, nil
}

func jobPredicate(jc config.Job, orgDomain string) window.Predicate {
	if jc.Predicate == "external_attendee" {
		return window.ExternalAttendee(orgDomain)
	}
	return nil
}
