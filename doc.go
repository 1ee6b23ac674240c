// Package entitydb is the storage core of an embedded entity store.
//
// Entities are typed records with properties, links to other entities and
// binary blobs. They live in an append-only log with ordered, snapshot
// isolated stores. Every facet keeps a primary index and derived
// secondary indices; the refactoring engine detects and heals divergence
// between them.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, err := entitydb.Open(ctx, "./data", entitydb.WithLogger(entitydb.NewTextLogger(slog.LevelInfo)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Repair
//
// Open runs the cheap one-time refactorings (structural maintenance,
// null-index backfill, the negative float fix-up). The full link and
// property consistency passes scan every index and run on request:
//
//	reports, err := db.Repair(ctx, entitydb.FullPlan())
//	for _, r := range reports {
//	    fmt.Println(r.Pass, r.TypeName, r.Phantom, r.Missing)
//	}
//
// # Backup
//
// A backup copies the log up to the high address of a snapshot and the
// blob files whose handles were issued before it. Writers are not blocked.
//
//	f, _ := os.Create("backup.tar.zst")
//	stats, err := db.Backup(ctx, f)
//
// # Blob Vault
//
// Blobs are stored in a directory below the environment by default.
// WithObjectVault keeps them in a blobstore.Store instead (local, memory,
// MinIO or S3); such blobs are not part of a file backup.
package entitydb
