package cli

import (
	"github.com/spf13/cobra"
)

func newSkillsCmd() *cobra.Command {
	var skill string
	var limit int

	cmd := &cobra.Command{
		Use:   "skills <agent_id>",
		Short: "Print an agent's per-skill proficiency time series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			metrics, err := st.ListLearningMetrics(cmd.Context(), args[0], skill, limit)
			if err != nil {
				return err
			}
			if len(metrics) == 0 {
				cmd.Println("no learning metrics recorded")
				return nil
			}
			for _, m := range metrics {
				plateau := ""
				if m.PlateauDetected {
					plateau = " [plateau]"
				}
				cmd.Printf("%s  %-16s prof=%.3f Δ=%+.3f tasks=%d ok=%d avg_time=%.0fs avg_val=%.2f%s\n",
					m.MeasuredAt.Format("2006-01-02 15:04:05"), m.SkillCategory,
					m.ProficiencyScore, m.ImprovementRate, m.TaskCount, m.SuccessCount,
					m.AvgCompletionTimeSeconds, m.AvgValidationScore, plateau)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&skill, "skill", "", "Filter to one skill category")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max rows (0 for all)")
	return cmd
}
