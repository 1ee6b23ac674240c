package main

import (
	"github.com/spf13/cobra"
)

func newRepairCommand(opts *rootOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Run the refactorings that heal index divergence",
		Long: `Run the refactorings of the store.

By default only structural maintenance, the null-index backfill and the
negative float fix-up run. --full adds the link and property consistency
passes, which scan every index of every entity type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := opts.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer db.Close()

			reports, err := db.Repair(cmd.Context(), opts.plan(full))
			w := cmd.OutOrStdout()
			var changes int64
			for _, r := range reports {
				changes += r.Changes()
				switch {
				case r.Skipped:
					printWarning(w, "%-12s %-20s skipped, runs again on next repair", r.Pass, r.TypeName)
				case r.Changes() > 0:
					printWarning(w, "%-12s %-20s scanned=%d phantom=%d missing=%d redundant=%d rewritten=%d deleted=%d",
						r.Pass, r.TypeName, r.Scanned, r.Phantom, r.Missing, r.Redundant, r.Rewritten, r.DeletedEntities)
				case opts.verbose:
					printSuccess(w, "%-12s %-20s scanned=%d", r.Pass, r.TypeName, r.Scanned)
				}
			}
			if err != nil {
				return err
			}
			printSuccess(w, "repair completed: %d passes, %d changes", len(reports), changes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "also run link and property consistency")
	return cmd
}
