package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dereadi/ganuda-ai-sub006/internal/store"
)

// newAnnounceCmd posts a task announcement. Announcements normally come from
// an external producer; this exists for local clusters and smoke tests.
func newAnnounceCmd() *cobra.Command {
	var (
		taskType      string
		content       string
		capabilities  []string
		preferredNode string
		priority      int
		deadline      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "announce <task_id>",
		Short: "Post a task announcement for bidding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			taskID := args[0]
			if taskID == "-" {
				taskID = uuid.NewString()
			}
			a := store.TaskAnnouncement{
				TaskID:               taskID,
				TaskType:             taskType,
				Content:              content,
				RequiredCapabilities: capabilities,
				PreferredNode:        preferredNode,
				Priority:             priority,
				AnnouncedAt:          time.Now().UTC(),
			}
			if deadline > 0 {
				d := time.Now().UTC().Add(deadline)
				a.Deadline = &d
			}
			if err := st.CreateAnnouncement(cmd.Context(), a); err != nil {
				return fmt.Errorf("announce: %w", err)
			}
			cmd.Printf("announced %s (priority %d, capabilities: %s)\n", taskID, priority, strings.Join(capabilities, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "general", "Task type label")
	cmd.Flags().StringVar(&content, "content", "", "Task content")
	cmd.Flags().StringSliceVar(&capabilities, "require", nil, "Required capability (repeatable)")
	cmd.Flags().StringVar(&preferredNode, "prefer-node", "", "Preferred node name")
	cmd.Flags().IntVar(&priority, "priority", 5, "Priority (lower is more urgent)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Deadline relative to now (e.g. 2h); 0 for none")
	return cmd
}
