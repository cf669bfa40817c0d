package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/ioguard/pkg/audit"
)

// NewAuditCommand creates the audit command
func NewAuditCommand() *cobra.Command {
	var dbPath string
	var outcome string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded verdicts",
		Long: `List verdicts from the audit database, newest first.

Examples:
  ioguard audit
  ioguard audit --outcome rejected --limit 20
  ioguard audit --db /var/lib/ioguard/ioguard.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit cannot be negative: %d", limit)
			}
			if dbPath == "" {
				dbPath = DefaultDatabasePath()
			}

			store, err := audit.NewStoreWithPath(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open audit database: %w", err)
			}
			defer func() { _ = store.Close() }()

			verdicts, err := store.List(audit.ListOptions{
				Outcome: audit.Outcome(outcome),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			if len(verdicts) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No verdicts recorded")
				return nil
			}

			for _, v := range verdicts {
				line := fmt.Sprintf("[%s] %-13s %-11s %s",
					v.Timestamp.Format(time.RFC3339), v.Outcome, v.EventType, v.EventID)
				if v.Reason != "" {
					line += "\n    " + v.Reason
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			counts, err := store.CountByOutcome()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nTotals: admitted=%d rejected=%d policy_denied=%d\n",
				counts[audit.OutcomeAdmitted], counts[audit.OutcomeRejected], counts[audit.OutcomePolicyDenied])

			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Audit database path (default: ~/.ioguard/ioguard.db)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome (admitted, rejected, policy_denied)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of verdicts to show")

	return cmd
}
