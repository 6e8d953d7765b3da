package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/geodesy/core"
	"github.com/signalsfoundry/geodesy/ellipsoid"
	"github.com/signalsfoundry/geodesy/internal/config"
	"github.com/signalsfoundry/geodesy/internal/logging"
	"github.com/signalsfoundry/geodesy/internal/observability"
	"github.com/signalsfoundry/geodesy/internal/rpc"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML or TOML config file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load config", logging.Err(err))
		os.Exit(1)
	}

	log := logging.New(cfg.Logging())
	loader.Watch(log, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

// run serves GeodesyService on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return err
	}

	registry := ellipsoid.NewRegistry()
	if err := cfg.RegisterModels(registry); err != nil {
		return err
	}
	calc := core.NewCalculator(
		core.WithRegistry(registry),
		core.WithDefaultModel(cfg.Ellipsoid.DefaultModel),
		core.WithMaxIterations(cfg.Ellipsoid.MaxIterations),
		core.WithLogger(log),
		core.WithRecorder(collector),
	)
	// Fail fast on a default model that is not registered.
	if _, err := calc.Resolve(""); err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			rpc.RequestIDUnaryServerInterceptor(log),
			rpc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
			rpc.RateLimitUnaryServerInterceptor(cfg.Server.RateLimit, cfg.Server.RateBurst),
		),
	)
	rpc.RegisterGeodesyServer(server, rpc.NewService(calc, log))

	log.Info(ctx, "starting geodesy gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("default_model", calc.DefaultModel()),
		logging.Int("models", len(calc.Models())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down geodesy server")
		server.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
