// Package identity validates and persists the agent's identity. The id and
// node name arrive as positional arguments and end up in store rows and metric
// labels, so they are checked once here before anything else runs.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent is the on-disk identity record at <home>/identity.yaml. It is
// informational: the store rows are keyed by the ids themselves.
type Agent struct {
	AgentID      string    `yaml:"agent_id"`
	NodeName     string    `yaml:"node_name"`
	RegisteredAt time.Time `yaml:"registered_at"`
}

const maxIDLength = 128

// Validate rejects ids that would make store rows or metric labels ambiguous:
// empty, overlong, leading/trailing space, or control characters.
func Validate(agentID, nodeName string) error {
	if err := checkID("agent id", agentID); err != nil {
		return err
	}
	return checkID("node name", nodeName)
}

func checkID(what, id string) error {
	if id == "" {
		return errors.New(what + " is required")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s exceeds %d bytes", what, maxIDLength)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%s has leading or trailing whitespace: %q", what, id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s contains a control character: %q", what, id)
		}
	}
	return nil
}

// Path returns the identity file location under the agent home.
func Path(home string) string {
	return filepath.Join(home, "identity.yaml")
}

// Load reads the identity record. Returns (nil, nil) when none exists.
func Load(home string) (*Agent, error) {
	data, err := os.ReadFile(Path(home))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var a Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save writes the identity record, creating the home directory if needed.
func Save(home string, a *Agent) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(home), data, 0o644)
}

// Register validates the pair and records it under home. The RegisteredAt of
// an existing record is preserved across restarts with the same identity.
func Register(home, agentID, nodeName string) (*Agent, error) {
	if err := Validate(agentID, nodeName); err != nil {
		return nil, err
	}
	a := &Agent{AgentID: agentID, NodeName: nodeName, RegisteredAt: time.Now().UTC()}
	if prev, err := Load(home); err == nil && prev != nil &&
		prev.AgentID == agentID && prev.NodeName == nodeName {
		a.RegisteredAt = prev.RegisteredAt
	}
	if err := Save(home, a); err != nil {
		return nil, err
	}
	return a, nil
}
