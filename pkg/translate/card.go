package translate

import "github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"

// ModernAgentCard is the wire shape returned by a downstream agent's
// /.well-known/agent.json endpoint (modern dialect field names: snake_case
// capability flags, no peer_agents/authentication concept).
type ModernAgentCard struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	URL                string `json:"url"`
	Version            string `json:"version,omitempty"`
	DocumentationURL   string `json:"documentation_url,omitempty"`
	DefaultInputModes  []string `json:"default_input_modes,omitempty"`
	DefaultOutputModes []string `json:"default_output_modes,omitempty"`
	Capabilities struct {
		Streaming              bool `json:"streaming"`
		PushNotifications      bool `json:"push_notifications"`
		StateTransitionHistory bool `json:"state_transition_history"`
	} `json:"capabilities"`
	Provider *struct {
		Organization string `json:"organization"`
		URL          string `json:"url,omitempty"`
	} `json:"provider,omitempty"`
	Skills []types.AgentSkill `json:"skills,omitempty"`
	// SecuritySchemes is read from the wire but has no legacy equivalent;
	// protocol_version is not decoded at all. See DESIGN.md Open Question on
	// authentication vs security_schemes.
	SecuritySchemes any `json:"security_schemes,omitempty"`
}

// TranslateModernCardToLegacy converts a downstream agent's modern
// AgentCard into the legacy SAM AgentCard shape used internally. Fields
// with no legacy equivalent (security_schemes, protocol_version,
// authentication, tools) are intentionally dropped; peer_agents is always
// reset to an empty map (spec.md §9 Open Question #1).
func TranslateModernCardToLegacy(modern *ModernAgentCard) types.AgentCard {
	card := types.AgentCard{
		Name:        modern.Name,
		DisplayName: modern.Name,
		Description: modern.Description,
		URL:         modern.URL,
		Version:     modern.Version,
		DocumentationURL: modern.DocumentationURL,
		Capabilities: types.AgentCapabilities{
			Streaming:              modern.Capabilities.Streaming,
			PushNotifications:      modern.Capabilities.PushNotifications,
			StateTransitionHistory: modern.Capabilities.StateTransitionHistory,
		},
		DefaultInputModes:  modern.DefaultInputModes,
		DefaultOutputModes: modern.DefaultOutputModes,
		Skills:             modern.Skills,
		PeerAgents:         map[string]string{},
	}
	if modern.Provider != nil {
		card.Provider = &types.AgentProvider{
			Organization: modern.Provider.Organization,
			URL:          modern.Provider.URL,
		}
	}
	return card
}
