// Command gateway runs the Gateway Component (spec.md §4.5) as a
// standalone process: it accepts client requests over HTTP, bridges them
// onto the event mesh, and streams responses back over SSE.
//
// Usage:
//
//	export SAM_CONFIG=./gateway.yaml
//	go run ./cmd/gateway
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/config"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/gateway"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/runtime"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("SAM_CONFIG"), "path to the gateway's YAML config file")
	artifactDir := flag.String("artifact-dir", "./artifacts", "local filesystem root for the artifact store")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "gateway: -config (or SAM_CONFIG) is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg, *artifactDir)
	if err != nil {
		logger.Error("gateway: failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close(context.Background(), rt.Config.DeploymentTimeout())

	tp, err := telemetry.NewTracerProvider(cfg.TelemetryServiceName)
	if err != nil {
		logger.Error("gateway: failed to build tracer provider", "error", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	gw := gateway.New(gateway.Config{
		Namespace: cfg.Namespace,
		AppName:   "gateway",
	}, rt.Registry, rt.Buffer, rt.Mesh, rt.Artifacts)

	handler := otelhttp.NewHandler(gw.Router(), "gateway")
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE responses are long-lived.
	}

	go func() {
		<-ctx.Done()
		logger.Info("gateway: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("gateway: graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("gateway: listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("gateway: server exited", "error", err)
		os.Exit(1)
	}
}
