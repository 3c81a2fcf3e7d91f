package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/adt-armada/internal/api/debug"
	"github.com/ahrav/adt-armada/internal/app/janitor"
	"github.com/ahrav/adt-armada/internal/infra/liveness"
	lockfs "github.com/ahrav/adt-armada/internal/infra/storage/locking/fs"
	"github.com/ahrav/adt-armada/pkg/common"
	"github.com/ahrav/adt-armada/pkg/common/logger"
	"github.com/ahrav/adt-armada/pkg/common/otel"
	"github.com/ahrav/adt-armada/pkg/metrics"
)

const serviceType = "janitor"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			// Output the error event with valid JSON details.
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("JANITOR-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	// TODO: Adjust the min log level via env var.
	log = logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	// Setup signal handling.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize telemetry.
	prob := 1.0
	if v := os.Getenv("OTEL_SAMPLING_RATIO"); v != "" {
		prob, err = strconv.ParseFloat(v, 64)
		if err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}

	otelServiceName := os.Getenv("OTEL_SERVICE_NAME")
	if otelServiceName == "" {
		otelServiceName = "adt-janitor"
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      otelServiceName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true, // TODO: Come back to setup TLS.
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(otelServiceName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	// Start the debug service.
	go func() {
		debugPort := os.Getenv("DEBUG_PORT")
		if debugPort == "" {
			debugPort = "4000"
		}
		debugHost := fmt.Sprintf("%s:%s", os.Getenv("DEBUG_HOST"), debugPort)
		log.Info(ctx, "startup", "status", "debug router started", "host", debugHost)

		if err := http.ListenAndServe(debugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", debugHost, "msg", err)
		}
	}()

	registryPath := os.Getenv("LOCK_REGISTRY_PATH")
	if registryPath == "" {
		log.Error(ctx, "LOCK_REGISTRY_PATH environment variable must be set")
		os.Exit(1)
	}

	interval := parseDurationEnv(ctx, log, "JANITOR_INTERVAL")
	maxAge := parseDurationEnv(ctx, log, "JANITOR_MAX_LOCK_AGE")
	if maxAge == 0 {
		maxAge = 30 * time.Minute
	}

	registry, err := lockfs.NewLockRegistry(registryPath, liveness.NewProber(log), tracer)
	if err != nil {
		log.Error(ctx, "failed to open lock registry", "error", err)
		os.Exit(1)
	}

	m := metrics.New("lock_janitor")
	go func() {
		metricsAddr := os.Getenv("METRICS_ADDR")
		if metricsAddr == "" {
			metricsAddr = ":8081"
		}
		if err := metrics.StartServer(metricsAddr); err != nil {
			log.Error(ctx, "metrics server error", "error", err)
		}
	}()

	svc := janitor.NewService(janitor.Config{Interval: interval, MaxAge: maxAge}, registry, m, log, tracer)

	log.Info(ctx, "Janitor initialized", "registry_path", registryPath)
	ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for either a signal or a janitor error.
	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

	case err := <-errCh:
		log.Error(ctx, "Janitor error", "error", err)
		os.Exit(1)
	}

	log.Info(context.Background(), "Janitor shutdown complete")
}

// parseDurationEnv reads a duration env var, returning 0 when unset.
func parseDurationEnv(ctx context.Context, log *logger.Logger, name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		log.Error(ctx, "failed to parse duration", "env", name, "value", v, "error", err)
		os.Exit(1)
	}
	return d
}
