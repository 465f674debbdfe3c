package cli

import (
	"github.com/spf13/cobra"

	"github.com/dereadi/ganuda-ai-sub006/internal/resolver"
)

// newResolveCmd runs one sweep of the reference assignment resolver. The
// production resolver is an external collaborator; this is for local clusters.
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Run one assignment sweep: expire overdue tasks, assign best bids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			assigned, expired, err := resolver.New(st).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("assigned %d, expired %d\n", assigned, expired)
			return nil
		},
	}
}
