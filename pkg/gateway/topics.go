package gateway

import (
	"fmt"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// AgentRequestTopic builds the per-agent request topic (spec.md §6).
func AgentRequestTopic(namespace, agentName string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/request/%s", namespace, agentName)
}

// AgentStatusTopic builds the per-task status-stream topic advertised via
// the a2aStatusTopic user-property (spec.md §6).
func AgentStatusTopic(namespace, agentName string, taskID types.LogicalTaskID) string {
	return fmt.Sprintf("%s/a2a/v1/agent/status/%s/%s", namespace, agentName, taskID)
}

// DiscoveryTopic builds the shared agent-discovery topic (spec.md §6).
func DiscoveryTopic(namespace string) string {
	return namespace + "/a2a/v1/discovery/agents"
}

// replyTopic builds a private, gateway-owned final-reply topic for one
// task, advertised via the replyTo user-property (spec.md §6: "private
// topic owned by the submitting gateway").
func (g *Gateway) replyTopic(taskID types.LogicalTaskID) string {
	return fmt.Sprintf("%s/gateway/%s/reply/%s", g.cfg.Namespace, g.cfg.GatewayID, taskID)
}
