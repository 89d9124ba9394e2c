package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/internal/config"
	"github.com/MarkoPoloResearchLab/eventpages/internal/logging"
	"github.com/MarkoPoloResearchLab/eventpages/internal/metrics"
	"github.com/MarkoPoloResearchLab/eventpages/internal/reconcile"
	"github.com/MarkoPoloResearchLab/eventpages/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/eventpages/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const metricsNamespace = "eventpages"

// application holds the wired services shared by every subcommand.
type application struct {
	logger           *zap.Logger
	ledger           *ledger.Service
	events           *eventpage.Service
	workflow         *eventcreation.Workflow
	payments         *payment.Handler
	sweeper          *reconcile.Sweeper
	sessionValidator *sessionvalidator.Validator
	metrics          *metrics.PrometheusObserver
	metricsHandler   http.Handler
	closers          []func() error
}

func newApplication(ctx context.Context, cfg config.Config) (app *application, err error) {
	logger, err := logging.New(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	app = &application{logger: logger}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	app.closers = append(app.closers, cleanup)
	if err := prepareSchema(gormDB, driver); err != nil {
		return nil, err
	}

	ledgerStore := ledger.Store(gormstore.New(gormDB))
	if cfg.StoreDriver == config.StoreDriverPgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("pgx pool: %w", err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("pgx migrate: %w", err)
		}
		ledgerStore = pgstore.New(pool)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver(metricsNamespace, registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init: %w", err)
	}
	app.metrics = observer
	app.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	clock := func() time.Time { return time.Now().UTC() }
	app.ledger, err = ledger.NewService(ledgerStore, clock,
		ledger.WithOperationLogger(logging.NewLedgerOperationLogger(logger)),
		ledger.WithOperationLogger(observer),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	app.events, err = eventpage.NewService(gormstore.NewEventStore(gormDB), clock,
		eventpage.WithSlugCacheSize(cfg.SlugCacheSize),
		eventpage.WithSlugCacheTTL(cfg.SlugCacheTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("event service init: %w", err)
	}
	app.workflow, err = eventcreation.NewWorkflow(app.ledger, app.events, logger,
		eventcreation.WithObserver(logging.NewWorkflowLogger(logger)),
		eventcreation.WithObserver(observer),
	)
	if err != nil {
		return nil, fmt.Errorf("workflow init: %w", err)
	}
	app.payments, err = payment.NewHandler(app.ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("payment handler init: %w", err)
	}
	app.sweeper, err = reconcile.NewSweeper(app.ledger, app.events, logger, reconcile.WithObserver(observer))
	if err != nil {
		return nil, fmt.Errorf("sweeper init: %w", err)
	}
	app.sessionValidator, err = sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.JWTSigningKey),
		Issuer:     cfg.JWTIssuer,
		CookieName: cfg.JWTCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	return app, nil
}

func (app *application) close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		if err := app.closers[index](); err != nil {
			app.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = app.logger.Sync()
}
