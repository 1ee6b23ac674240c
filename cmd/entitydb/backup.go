package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/entitydb"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	var (
		out   string
		toDir bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the store to a zstd tar archive or a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			db, err := opts.openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close()

			var stats entitydb.BackupStats
			if toDir {
				stats, err = db.BackupToDir(cmd.Context(), out, opts.cfg.Backup.Parallelism)
			} else {
				stats, err = backupToFile(cmd, db, out)
			}
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "backup written to %s: %d files, %d bytes, %d excluded",
				out, stats.Files, stats.Bytes, stats.Excluded)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "archive file or target directory")
	cmd.Flags().BoolVar(&toDir, "to-dir", false, "copy files into a directory instead of writing an archive")
	return cmd
}

func backupToFile(cmd *cobra.Command, db *entitydb.DB, path string) (entitydb.BackupStats, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return entitydb.BackupStats{}, err
	}
	stats, err := db.Backup(cmd.Context(), f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return stats, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return stats, err
	}
	return stats, f.Close()
}
