// Command proxy runs the Proxy Component (spec.md §4.4): it bridges a
// fixed set of downstream A2A-over-HTTPS agents onto the event mesh,
// forwarding requests addressed to each agent's request topic and
// republishing translated responses back to whichever gateway submitted
// the task.
//
// Usage:
//
//	export SAM_CONFIG=./proxy.yaml
//	go run ./cmd/proxy
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/config"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/proxy"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/runtime"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("SAM_CONFIG"), "path to the proxy's YAML config file")
	artifactDir := flag.String("artifact-dir", "./artifacts", "local filesystem root for the artifact store")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "proxy: -config (or SAM_CONFIG) is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "proxy:", err)
		os.Exit(1)
	}
	if len(cfg.Agents) == 0 {
		fmt.Fprintln(os.Stderr, "proxy: config.agents must list at least one downstream agent")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg, *artifactDir)
	if err != nil {
		logger.Error("proxy: failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close(context.Background(), rt.Config.DeploymentTimeout())

	tp, err := telemetry.NewTracerProvider(cfg.TelemetryServiceName)
	if err != nil {
		logger.Error("proxy: failed to build tracer provider", "error", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	agents := make([]proxy.AgentConfig, len(cfg.Agents))
	for i, a := range cfg.Agents {
		agents[i] = proxy.AgentConfig{
			Name:                  a.Name,
			URL:                   a.URL,
			RequestTimeoutSeconds: a.RequestTimeoutSeconds,
			AuthScheme:            a.AuthScheme,
			AuthToken:             a.AuthToken,
		}
	}
	discovery := proxy.NewDiscovery(agents)
	if err := discovery.RefreshAll(ctx); err != nil {
		logger.Warn("proxy: initial agent card discovery had failures", "error", err)
	}

	px := proxy.New(discovery, rt.Artifacts, rt.Mesh, rt.Registry, "proxy")

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range cfg.Agents {
		agentName := a.Name
		g.Go(func() error {
			logger.Info("proxy: serving agent", "agent", agentName)
			err := px.Serve(gctx, cfg.Namespace, agentName, "proxy-"+agentName, agentName)
			if gctx.Err() != nil {
				return nil // shutdown in progress, not a real failure
			}
			return err
		})
	}

	if interval := cfg.DiscoveryInterval(); interval > 0 {
		g.Go(func() error {
			return runDiscoveryLoop(gctx, discovery, interval)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("proxy: exited with error", "error", err)
		os.Exit(1)
	}
}

// runDiscoveryLoop re-fetches every configured agent's card on a fixed
// interval until ctx is canceled (spec.md §4.4: "Schedule periodic
// discovery every discoveryIntervalSeconds").
func runDiscoveryLoop(ctx context.Context, discovery *proxy.Discovery, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := discovery.RefreshAll(ctx); err != nil {
				logger.Warn("proxy: periodic discovery had failures", "error", err)
			}
		}
	}
}
