package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/pipeline"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync passes on the configured cron schedule and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Schedule.Cron == "" {
			return pserrors.NewConfigError("schedule.cron", "must be set for the schedule command")
		}
		ctx := cmd.Context()
		log := logging.Default()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		c := cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
		if _, err := c.AddFunc(cfg.Schedule.Cron, func() {
			rep, err := a.runOnce(ctx, pipeline.Options{})
			switch {
			case errors.Is(err, pipeline.ErrRunInProgress):
				log.Warn().Msg("previous run still in progress; trigger skipped")
			case err != nil:
				log.Error().Err(err).Msg("scheduled run failed")
			default:
				log.Info().Str("run_id", rep.RunID).Msg("scheduled run complete")
			}
		}); err != nil {
			return pserrors.NewConfigError("schedule.cron", err.Error())
		}

		var srv *http.Server
		if cfg.Schedule.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			srv = &http.Server{Addr: cfg.Schedule.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server stopped")
				}
			}()
			log.Info().Str("addr", srv.Addr).Msg("serving metrics")
		}

		c.Start()
		log.Info().Str("cron", cfg.Schedule.Cron).Str("layer", cfg.Layer).Msg("scheduler started")
		<-ctx.Done()

		log.Info().Msg("shutting down; waiting for the active run")
		<-c.Stop().Done()
		if srv != nil {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}
		return nil
	},
}

// cronLogger adapts the zerolog default logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logging.Default().Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logging.Default().Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
