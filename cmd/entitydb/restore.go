package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/entitydb"
)

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore an archive written by backup into an empty directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from == "" {
				return errors.New("--from is required")
			}
			entries, err := os.ReadDir(opts.cfg.Dir)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if len(entries) > 0 {
				return fmt.Errorf("restore target %s is not empty", opts.cfg.Dir)
			}
			f, err := os.Open(from)
			if err != nil {
				return err
			}
			defer f.Close()

			logger, err := opts.logger()
			if err != nil {
				return err
			}
			stats, err := entitydb.Restore(cmd.Context(), f, opts.cfg.Dir, entitydb.WithLogger(logger))
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "restored %d files (%d bytes) into %s", stats.Files, stats.Bytes, opts.cfg.Dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&from, "from", "f", "", "archive written by backup")
	return cmd
}
