package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eskate/storefront-api/internal/adapters/httpapi"
	"github.com/eskate/storefront-api/internal/app/device"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/app/validation"
	platformclock "github.com/eskate/storefront-api/internal/platform/clock"
	"github.com/eskate/storefront-api/internal/platform/config"
	"github.com/eskate/storefront-api/internal/platform/i18n"
	"github.com/eskate/storefront-api/internal/platform/logging"
	"github.com/eskate/storefront-api/internal/platform/metrics"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/idempotency"
)

// sweepInterval is how often idle devices and expired idempotency records
// are dropped.
const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	clk := platformclock.NewSystemClock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := openBackends(ctx, cfg, clk, log)
	if err != nil {
		return err
	}
	defer b.close()

	locale := i18n.Parse(cfg.ValidationLocale)
	validator := validation.NewValidator(
		validation.DefaultSchema(cfg.MinimumAge),
		clk,
		validation.WithLocation(cfg.Location()),
		validation.WithPrinter(i18n.Printer(locale)),
	)
	checker := uniqueness.NewChecker(b.profiles, uniqueness.WithLogger(log), uniqueness.WithMetrics(m))
	devices := device.NewRegistry(device.Deps{
		Validator:           validator,
		Checker:             checker,
		Profiles:            b.profiles,
		Sessions:            b.sessions,
		Identities:          b.identities,
		Orphans:             b.orphans,
		Clock:               clk,
		Logger:              log,
		Metrics:             m,
		CompensationTimeout: cfg.CompensationTimeout,
		CheckTimeout:        cfg.CheckTimeout,
		Location:            cfg.Location(),
	})

	api := httpapi.NewServer(devices, checker, b.idem, clk, locale, log)
	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: httpapi.NewRouter(api, httpapi.RouterOptions{
			Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			Logger:  log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening",
			zap.Int("port", cfg.Port),
			zap.String("storage", cfg.StorageBackend),
			zap.String("sessionCache", cfg.SessionCacheBackend),
			zap.String("identity", cfg.IdentityBackend),
			zap.String("orphans", cfg.OrphanReporter),
			zap.String("locale", locale.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweep(ctx, cfg, clk, devices, b, log)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func sweep(ctx context.Context, cfg config.Config, clk clockport.Clock, devices *device.Registry, b *backends, log *zap.Logger) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if n := devices.Prune(cfg.DeviceIdleTimeout); n > 0 {
			log.Debug("pruned idle devices", zap.Int("count", n))
		}
		purger, ok := b.idem.(idempotency.Purger)
		if !ok {
			continue
		}
		n, err := purger.Purge(ctx, clk.Now().Add(-cfg.IdempotencyRetention))
		if err != nil {
			log.Warn("purge idempotency records", zap.Error(err))
			continue
		}
		if n > 0 {
			log.Debug("purged idempotency records", zap.Int64("count", n))
		}
	}
}
