package daemon

import "github.com/dereadi/ganuda-ai-sub006/internal/config"

// StartOptions configures the bidding daemon: the agent's identity plus
// runtime tuning resolved from the environment.
type StartOptions struct {
	AgentID  string
	NodeName string
	Config   config.Config
}
