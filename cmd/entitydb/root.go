package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/entitydb"
	"github.com/hupe1980/entitydb/blobstore"
	miniostore "github.com/hupe1980/entitydb/blobstore/minio"
	s3store "github.com/hupe1980/entitydb/blobstore/s3"
	"github.com/hupe1980/entitydb/blobvault"
	"github.com/hupe1980/entitydb/internal/config"
)

type rootOptions struct {
	configPath string
	dir        string
	verbose    bool
	noColor    bool

	cfg config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "entitydb",
		Short:         "Maintenance tool for entitydb stores",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			color.NoColor = color.NoColor || opts.noColor
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.dir != "" {
				cfg.Dir = opts.dir
			}
			if opts.verbose {
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", "", "database directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newRepairCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))

	return cmd
}

// openDB opens the configured database. Commands that run their own repair
// pass repairOnOpen=false.
func (o *rootOptions) openDB(ctx context.Context, repairOnOpen bool) (*entitydb.DB, error) {
	dbOpts, err := o.dbOptions(ctx)
	if err != nil {
		return nil, err
	}
	dbOpts = append(dbOpts, entitydb.WithRepairOnOpen(repairOnOpen && o.cfg.Repair.OnOpen))
	return entitydb.Open(ctx, o.cfg.Dir, dbOpts...)
}

func (o *rootOptions) logger() (*entitydb.Logger, error) {
	level, err := config.ParseLevel(o.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if o.cfg.LogFormat == "json" {
		return entitydb.NewJSONLogger(level), nil
	}
	return entitydb.NewTextLogger(level), nil
}

func (o *rootOptions) dbOptions(ctx context.Context) ([]entitydb.Option, error) {
	cfg := o.cfg
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	compression, err := blobvault.ParseCompression(cfg.Blobs.Compression)
	if err != nil {
		return nil, err
	}
	durability := entitydb.DurabilitySync
	if cfg.Durability == "async" {
		durability = entitydb.DurabilityAsync
	}

	opts := []entitydb.Option{
		entitydb.WithLogger(logger),
		entitydb.WithDurability(durability),
		entitydb.WithLogFileSize(cfg.FileSize),
		entitydb.WithCompression(compression),
		entitydb.WithSweepRange(cfg.Blobs.SweepRange),
		entitydb.WithInPlaceBlobLimit(cfg.Blobs.InPlaceLimit),
		entitydb.WithResources(entitydb.ResourceConfig{
			MemoryLimitBytes:     cfg.Limits.MemoryBytes,
			MaxBackgroundWorkers: cfg.Limits.MaxBackgroundOp,
			IOLimitBytesPerSec:   cfg.Limits.IOBytesPerSec,
			RowsPerSec:           cfg.Limits.RowsPerSec,
		}),
	}
	if cfg.Objects != nil {
		store, err := objectStore(ctx, *cfg.Objects)
		if err != nil {
			return nil, err
		}
		opts = append(opts, entitydb.WithObjectVault(store))
	}
	return opts, nil
}

func objectStore(ctx context.Context, oc config.ObjectConfig) (blobstore.Store, error) {
	switch oc.Kind {
	case "local":
		if err := os.MkdirAll(oc.Root, 0o755); err != nil {
			return nil, err
		}
		return blobstore.NewLocalStore(oc.Root), nil
	case "minio":
		client, err := minio.New(oc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(oc.AccessKey, oc.SecretKey, ""),
			Secure: oc.UseSSL,
			Region: oc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return miniostore.NewStore(client, oc.Bucket, oc.Prefix), nil
	case "s3":
		store, err := s3store.New(ctx, oc.Bucket, oc.Prefix, oc.Region)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown object store kind %q", oc.Kind)
}

func (o *rootOptions) plan(full bool) entitydb.Plan {
	p := entitydb.DefaultPlan()
	if full || o.cfg.Repair.Full {
		p = entitydb.FullPlan()
	}
	p.BatchSize = o.cfg.Repair.BatchSize
	p.ProgressInterval = o.cfg.Repair.ProgressInterval
	return p
}
