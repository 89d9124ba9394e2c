package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/internal/config"
	"github.com/MarkoPoloResearchLab/eventpages/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/eventpages/internal/httpapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eventpagesd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "eventpagesd",
		Short:         "Event page builder with a credit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(config.KeyDatabaseURL, config.DefaultDatabaseURL, "database URL (postgres:// or sqlite://)")
	flags.String(config.KeyStoreDriver, config.StoreDriverGorm, "ledger store implementation: gorm or pgx")
	flags.String(config.KeyHTTPListenAddr, config.DefaultHTTPListenAddr, "HTTP listen address")
	flags.String(config.KeyGRPCListenAddr, config.DefaultGRPCListenAddr, "gRPC listen address")
	flags.String(config.KeyEnvironment, config.DefaultEnvironment, "development or production")
	flags.String(config.KeyAllowedOrigins, config.DefaultAllowedOrigin, "comma-separated list of allowed CORS origins")
	flags.String(config.KeyJWTSigningKey, "", "TAuth JWT signing key (required)")
	flags.String(config.KeyJWTIssuer, config.DefaultJWTIssuer, "expected JWT issuer")
	flags.String(config.KeyJWTCookieName, config.DefaultJWTCookieName, "JWT cookie name")
	flags.String(config.KeyWebhookSecret, "", "shared secret for webhook signatures (required)")
	flags.Duration(config.KeyRequestTimeout, config.DefaultRequestTimeout, "per-request timeout")
	flags.Int(config.KeySlugCacheSize, config.DefaultSlugCacheSize, "number of public event pages kept in memory")
	flags.Duration(config.KeySlugCacheTTL, config.DefaultSlugCacheTTL, "how long a cached public event page is served")

	cmd.AddCommand(newServeCommand(cfg), newReconcileCommand(cfg))
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC credit service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}
}

func newReconcileCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check balances against the transaction log and find unpaid events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runReconcile(ctx, cmd, *cfg)
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := config.NewViper()
	for _, key := range []string{
		config.KeyDatabaseURL,
		config.KeyStoreDriver,
		config.KeyHTTPListenAddr,
		config.KeyGRPCListenAddr,
		config.KeyEnvironment,
		config.KeyAllowedOrigins,
		config.KeyJWTSigningKey,
		config.KeyJWTIssuer,
		config.KeyJWTCookieName,
		config.KeyWebhookSecret,
		config.KeyRequestTimeout,
		config.KeySlugCacheSize,
		config.KeySlugCacheTTL,
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	*cfg = config.Load(v)
	return cfg.Validate()
}

func runServer(ctx context.Context, cfg config.Config) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookSecret:  cfg.WebhookSecret,
		RequestTimeout: cfg.RequestTimeout,
	}, httpapi.Dependencies{
		Ledger:           app.ledger,
		Events:           app.events,
		Creator:          app.workflow,
		Payments:         app.payments,
		SessionValidator: app.sessionValidator,
		RequestObserver:  app.metrics,
		MetricsHandler:   app.metricsHandler,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("http router: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	grpcserver.RegisterCreditServiceServer(grpcServer, grpcserver.NewCreditService(app.ledger))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP server starting", zap.String("listen_addr", cfg.HTTPListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
		logger.Error("server stopped", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown error", zap.Error(shutdownErr))
	}
	grpcServer.GracefulStop()

	if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) || errors.Is(serveErr, grpc.ErrServerStopped) {
		return nil
	}
	return serveErr
}

func runReconcile(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "profiles checked: %d\nevents checked: %d\n", report.ProfilesChecked, report.EventsChecked)
	for _, mismatch := range report.Mismatches {
		fmt.Fprintf(out, "balance mismatch: user=%s balance=%d transaction_sum=%d\n",
			mismatch.UserID.String(), mismatch.Balance.Int64(), mismatch.TransactionSum.Int64())
	}
	for _, ref := range report.UnpaidEvents {
		fmt.Fprintf(out, "unpaid event: user=%s event=%s\n", ref.UserID, ref.EventID)
	}
	if report.HasFindings() {
		return errors.New("reconciliation found inconsistencies")
	}
	return nil
}
