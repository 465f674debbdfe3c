// Package cli defines the jrbid command tree. The root command is the bidding
// daemon itself (`jrbid <agent_id> <node_name>`); subcommands are operator
// aids around the same store.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dereadi/ganuda-ai-sub006/internal/config"
	"github.com/dereadi/ganuda-ai-sub006/internal/daemon"
	"github.com/dereadi/ganuda-ai-sub006/internal/store"
)

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jrbid <agent_id> <node_name>",
		Short:        "Jr agent bidding daemon: bids on announced tasks and tracks per-skill proficiency",
		SilenceUsage: false,
		Args:         cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return daemon.StartForeground(cmd.Context(), daemon.StartOptions{
				AgentID:  args[0],
				NodeName: args[1],
				Config:   cfg,
			})
		},
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAnnounceCmd())
	cmd.AddCommand(newSkillsCmd())
	cmd.AddCommand(newResolveCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}

// openStore resolves the config and opens the configured backend; shared by
// the operator subcommands.
func openStore() (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return daemon.OpenStore(daemon.StartOptions{Config: cfg})
}
