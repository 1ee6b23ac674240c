package main

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

func newInfoCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the store id, high address, entity types and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := opts.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer db.Close()

			info, err := db.Info()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			printHeader(w, "Store")
			printField(w, "id", info.ID)
			printField(w, "dir", info.Dir)
			printField(w, "high address", info.HighAddress)

			printHeader(w, "Entity types")
			for _, t := range info.Types {
				printField(w, t.Name, t.Entities)
			}

			printHeader(w, "Settings")
			for _, k := range slices.Sorted(maps.Keys(info.Settings)) {
				printField(w, k, info.Settings[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
