package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parcelsync/internal/config"
	"parcelsync/internal/database"
	"parcelsync/internal/logging"
	"parcelsync/internal/metrics"
	"parcelsync/internal/pipeline"
	"parcelsync/internal/publish"
	"parcelsync/internal/schema"
	"parcelsync/internal/source"
	"parcelsync/internal/sqlite"
	"parcelsync/internal/store"
	psync "parcelsync/internal/sync"
	"parcelsync/internal/tabular"
)

// app is the wired pipeline for one configuration.
type app struct {
	cfg     *config.Config
	schema  *schema.Schema
	target  *store.SQL
	metrics *metrics.Metrics
	runner  *pipeline.Runner

	closers []func() error
}

// newApp opens the target and source connections and wires the runner.
// The caller must close the app.
func newApp(ctx context.Context, c *config.Config) (a *app, err error) {
	a = &app{cfg: c, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.schema, err = c.LoadSchema(); err != nil {
		return nil, err
	}

	db, dialect, err := a.openTarget(ctx)
	if err != nil {
		return nil, err
	}
	if a.target, err = store.New(db, dialect, c.Target.Table, a.schema); err != nil {
		return nil, err
	}

	src, err := a.openSource(ctx, db)
	if err != nil {
		return nil, err
	}

	pub, err := a.publishers()
	if err != nil {
		return nil, err
	}

	exec := psync.NewExecutor(a.target,
		psync.WithHook(psync.CommandHook{Before: c.Hooks.Before, After: c.Hooks.After}),
		psync.WithPublisher(pub),
	)

	a.runner = pipeline.New(pipeline.Config{
		Layer:     c.Layer,
		TaxCodes:  c.TaxCodes,
		ExportURI: c.Export.URI,
		TargetCRS: c.CRS.Target,
		Schema:    a.schema,
		PINRule:   c.PINRule(),
		URLs:      c.URLBuilder(),
	}, pipeline.Deps{
		Source:   src,
		Loader:   tabular.NewLoader(a.schema, tabular.Options{Delimiter: c.Delimiter(), Workers: c.Export.Workers}),
		Target:   a.target,
		Executor: exec,
		Metrics:  a.metrics,
	})
	return a, nil
}

func (a *app) openTarget(ctx context.Context) (*sql.DB, store.Dialect, error) {
	t := a.cfg.Target
	switch t.Driver {
	case config.DriverOracle:
		db, err := database.Open(ctx, t.Oracle, t.PingTimeout)
		if err != nil {
			return nil, store.Dialect{}, err
		}
		a.closers = append(a.closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			return nil, store.Dialect{}, err
		}
		return db, store.Oracle, nil
	default:
		db, err := sqlite.Open(ctx, t.SQLitePath)
		if err != nil {
			return nil, store.Dialect{}, err
		}
		a.closers = append(a.closers, db.Close)
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			return nil, store.Dialect{}, err
		}
		return db, store.SQLite, nil
	}
}

func (a *app) openSource(ctx context.Context, targetDB *sql.DB) (source.Source, error) {
	s := a.cfg.Source
	if s.Type == config.SourceShapefile {
		shp := source.NewShapefile(s.Path)
		shp.CRSOverride = s.CRS
		sp := a.schema.Spatial()
		shp.Required = []string{sp.Key, sp.Revision}
		return shp, nil
	}

	var db *sql.DB
	switch {
	case s.Driver == config.DriverOracle && a.cfg.Target.Driver == config.DriverOracle:
		db = targetDB
	case s.Driver == config.DriverOracle:
		conn, err := database.Open(ctx, a.cfg.Target.Oracle, a.cfg.Target.PingTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		db = conn
	default:
		conn, err := sqlite.Open(ctx, s.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		db = conn
	}
	return source.NewDatabase(db, s.Table, s.GeometryColumn, s.CRS)
}

func (a *app) publishers() (publish.Publisher, error) {
	p := a.cfg.Publish
	multi := publish.Multi{publish.Log{}}
	if p.Metadata {
		multi = append(multi, publish.NewMetadata(a.target))
	}
	if p.NATSURL != "" {
		nc, err := publish.DialNATS(p.NATSURL, p.NATSTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		multi = append(multi, publish.NewNATS(nc, p.NATSSubject))
	}
	return multi, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// runOnce runs one pass bounded by the configured timeout.
func (a *app) runOnce(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	ctx = logging.WithLogger(ctx, logging.Default())
	rep, err := a.runner.Run(ctx, opts)
	if err != nil && rep == nil {
		return nil, err
	}
	if err != nil {
		return rep, fmt.Errorf("run %s aborted: %w", rep.RunID, err)
	}
	return rep, nil
}
