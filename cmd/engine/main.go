// Package main runs the drivewatch decision engine. Samples arrive over HTTP
// (POST /v1/samples) and, when STDIN_INGEST is set, as NDJSON on standard
// input. Each device gets its own engine; confirmed parking goes to the
// optional Postgres store and fired alerts to the SQS delivery legs.
//
// On SIGINT or SIGTERM the HTTP server stops first and standard input ingest
// is cancelled, then in-flight deliveries and queued parking writes drain
// before the telemetry log closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"drivewatch/internal/api"
	"drivewatch/internal/cameras"
	"drivewatch/internal/config"
	"drivewatch/internal/db"
	"drivewatch/internal/delivery"
	"drivewatch/internal/engine"
	"drivewatch/internal/ingest"
	"drivewatch/internal/telemetry"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// stdinDrainTimeout bounds how long shutdown waits for standard input ingest
// to return. A read blocked on a silent stdin is abandoned after it.
const stdinDrainTimeout = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := types.NewSlogLogger(slogger).With("service", cfg.Service)
	logger.Info("drivewatch engine starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"addr", cfg.Server.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	th, err := loadThresholds(cfg.Engine.ThresholdsPath)
	if err != nil {
		return err
	}
	logger.Info("Thresholds loaded", "version", th.Version, "path", cfg.Engine.ThresholdsPath)

	zones, err := cameras.LoadZones(cfg.Engine.ZonesPath)
	if err != nil {
		return fmt.Errorf("loading zones: %w", err)
	}
	index, err := cameras.LoadFromSource(ctx, cfg.Engine.CameraSource, zones, logger)
	if err != nil {
		return fmt.Errorf("loading camera dataset: %w", err)
	}

	tlog, err := telemetry.OpenFile(cfg.Engine.TelemetryPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := tlog.Close(); err != nil {
			logger.Error("Failed to close telemetry log", "error", err)
		}
	}()

	deps := engine.Deps{
		Thresholds: th,
		Index:      index,
		Log:        tlog,
		Logger:     logger,
	}
	apiOpts := []api.Option{
		api.WithMaxBatch(cfg.Server.MaxBatch),
		api.WithRequestTimeout(cfg.Server.WriteTimeout),
	}

	if url := cfg.Database.URL.Unmask(); url != "" {
		pool, err := newPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := db.NewParkingRepository(pool)
		writer := db.NewWriter(cfg.Engine.WriteQueueSize, cfg.Database.WriteTimeout, logger.With("component", "parking_writer"))
		defer writer.Close()

		deps.Store = db.NewParkingStore(repo, writer)
		apiOpts = append(apiOpts,
			api.WithParkingLookup(repo),
			api.WithHealthCheckers(db.NewPingCheck(pool)),
		)
		logger.Info("Parking record store enabled")
	}

	coordinator, err := newCoordinator(ctx, cfg, tlog, logger)
	if err != nil {
		return err
	}
	deps.Dispatcher = coordinator
	defer coordinator.Wait()

	manager, err := engine.NewManager(deps,
		engine.WithDefaultDevice(cfg.Engine.DefaultDevice),
		engine.WithDatasetSource(cfg.Engine.CameraSource),
	)
	if err != nil {
		return err
	}
	apiOpts = append(apiOpts, api.WithDevices(manager))

	srv, err := api.NewServer(manager, slogger, apiOpts...)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		manager.Run(gCtx, cfg.Engine.SweepInterval, types.RealClock{})
		return nil
	})

	// Stdin ingest stays outside the group so a blocked read cannot hold up
	// the group. It is cancelled and waited for before the deferred drains run.
	ingestCtx, cancelIngest := context.WithCancel(gCtx)
	defer cancelIngest()
	ingestDone := closedChan()
	if cfg.Server.StdinIngest {
		ingestDone = startStdinIngest(ingestCtx, os.Stdin, manager, cfg.Engine.DefaultDevice, logger)
	}

	err = g.Wait()
	cancelIngest()
	if !waitFor(ingestDone, stdinDrainTimeout) {
		logger.Warn("Standard input ingest still blocked on read, continuing shutdown", "waited", stdinDrainTimeout)
	}
	if err != nil {
		return err
	}

	manager.Sweep(time.Now().UTC())
	logger.Info("engine stopped cleanly", "devices", len(manager.Devices()))
	return nil
}

// startStdinIngest streams samples from r into ing until EOF or ctx is done.
// The returned channel closes when the stream has returned.
func startStdinIngest(ctx context.Context, r io.Reader, ing ingest.Ingester, device string, logger types.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stats, err := ingest.Stream(ctx, r, ing, device, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Standard input ingest stopped", "error", err)
			return
		}
		logger.Info("Standard input ingest finished",
			"lines", stats.Lines,
			"accepted", stats.Accepted,
			"dropped", stats.Dropped,
			"invalid", stats.Invalid,
		)
	}()
	return done
}

// waitFor reports whether done closed within timeout.
func waitFor(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func loadThresholds(path string) (*thresholds.Config, error) {
	if path == "" {
		cfg := thresholds.Defaults()
		return &cfg, nil
	}
	cfg, err := thresholds.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading thresholds: %w", err)
	}
	return cfg, nil
}

func newPool(ctx context.Context, c config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(c.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = c.MaxConns
	poolCfg.MinConns = c.MinConns
	poolCfg.MaxConnLifetime = c.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// newCoordinator builds the delivery coordinator. AWS clients are only
// created when a queue or metrics are configured; without them every alert
// is reported as suppressed in telemetry.
func newCoordinator(ctx context.Context, cfg *config.Config, sink delivery.OutcomeSink, logger types.Logger) (*delivery.Coordinator, error) {
	opts := []delivery.Option{
		delivery.WithAttemptTimeout(cfg.Delivery.AttemptTimeout),
		delivery.WithMaxInFlight(cfg.Delivery.MaxInFlight),
		delivery.WithPolicy(delivery.NewPolicyEngine(delivery.DNDWindow{
			Enabled:  cfg.Delivery.DNDEnabled,
			Start:    cfg.Delivery.DNDStart,
			End:      cfg.Delivery.DNDEnd,
			Timezone: cfg.Delivery.DNDTimezone,
		}, logger)),
	}

	var primary, fallback delivery.Channel
	if cfg.AWS.PushQueue != "" || cfg.AWS.AudioQueue != "" || cfg.AWS.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.EndpointURL != "" {
			awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}

		sqsClient := sqs.NewFromConfig(awsCfg)
		if cfg.AWS.PushQueue != "" {
			primary = delivery.NewPushChannel(sqsClient, cfg.AWS.PushQueue, logger)
		}
		if cfg.AWS.AudioQueue != "" {
			fallback = delivery.NewAudioChannel(sqsClient, cfg.AWS.AudioQueue, logger)
		}
		if cfg.AWS.EnableMetrics {
			opts = append(opts, delivery.WithMetrics(delivery.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)))
		}
	}
	if primary == nil && fallback == nil {
		logger.Warn("No alert delivery queues configured, fired alerts will be logged as suppressed")
	}

	return delivery.NewCoordinator(primary, fallback, sink, logger.With("component", "delivery"), opts...), nil
}
