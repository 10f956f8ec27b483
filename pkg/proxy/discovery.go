package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// minSupportedAgentVersion is the oldest downstream AgentCard.Version that
// RefreshAll accepts without a warning. Cards with an unparseable or older
// version are still cached, and requests are still forwarded to those
// agents; RefreshAll only logs the mismatch.
var minSupportedAgentVersion = semver.MustParse("1.0.0")

// AgentConfig describes one downstream agent this proxy bridges to the mesh.
type AgentConfig struct {
	Name                  string
	URL                   string
	RequestTimeoutSeconds int
	AuthScheme, AuthToken string
}

// Discovery resolves and caches AgentCards for a fixed set of configured
// downstream agents. Card fetches are rate-limited across all agents; a
// failed fetch is logged and not retried until the next RefreshAll call.
type Discovery struct {
	agents  map[string]AgentConfig
	clients map[string]*AgentClient
	limiter *rate.Limiter

	mu    sync.RWMutex
	cards map[string]*types.AgentCard
}

// NewDiscovery creates a Discovery over agents. Its internal limiter bounds
// the rate of card fetches across all agents combined.
func NewDiscovery(agents []AgentConfig) *Discovery {
	byName := make(map[string]AgentConfig, len(agents))
	clients := make(map[string]*AgentClient, len(agents))
	for _, a := range agents {
		byName[a.Name] = a
		timeout := time.Duration(a.RequestTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 300 * time.Second
		}
		opts := []ClientOption{WithHTTPClient(&http.Client{Timeout: timeout})}
		if a.AuthToken != "" {
			opts = append(opts, WithAuth(a.AuthScheme, a.AuthToken))
		}
		clients[a.Name] = NewAgentClient(a.Name, a.URL, opts...)
	}
	return &Discovery{
		agents:  byName,
		clients: clients,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		cards:   make(map[string]*types.AgentCard),
	}
}

// Client returns the cached AgentClient for agentName, or nil if unconfigured.
func (d *Discovery) Client(agentName string) *AgentClient {
	return d.clients[agentName]
}

// RefreshAll fetches every configured agent's card concurrently. Individual
// failures are logged and do not fail the whole refresh — a proxy with 9 of
// 10 agents reachable should still serve those 9.
func (d *Discovery) RefreshAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, client := range d.clients {
		name, client := name, client
		g.Go(func() error {
			if err := d.limiter.Wait(gctx); err != nil {
				return nil
			}
			card, err := client.Discover(gctx)
			if err != nil {
				logger.Warn("discovery: failed to fetch agent card", "agent", name, "error", err)
				return nil
			}
			if !isCompatibleVersion(card.Version) {
				logger.Warn("discovery: agent card version below minimum supported",
					"agent", name, "version", card.Version, "minimum", minSupportedAgentVersion.String())
			}
			d.mu.Lock()
			d.cards[name] = card
			d.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Card returns the cached AgentCard for agentName, if discovery has
// succeeded for it at least once.
func (d *Discovery) Card(agentName string) (*types.AgentCard, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	card, ok := d.cards[agentName]
	return card, ok
}

// Names returns the configured agent names.
func (d *Discovery) Names() []string {
	names := make([]string, 0, len(d.agents))
	for name := range d.agents {
		names = append(names, name)
	}
	return names
}

// isCompatibleVersion reports whether version meets
// minSupportedAgentVersion. An unparseable version is treated as
// incompatible rather than silently allowed through.
func isCompatibleVersion(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return !v.LessThan(minSupportedAgentVersion)
}
