package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/entitydb/internal/codec"
	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/resource"
)

// Pass names a refactoring.
type Pass string

const (
	// PassStructure drops obsolete stores and clears unusable link tables.
	PassStructure Pass = "structure"
	// PassNullIndices fills the all indices from their primary index once.
	PassNullIndices Pass = "null_indices"
	// PassFloats rewrites floats stored by the legacy codec.
	PassFloats Pass = "negative_floats"
	// PassLinks reconciles the forward, reverse and all-links indices.
	PassLinks Pass = "links"
	// PassProperties reconciles the property value and all-properties indices.
	PassProperties Pass = "properties"
	// PassBlobs reconciles the all-blobs index with the blob rows.
	PassBlobs Pass = "blobs"
)

const (
	// DefaultBatchSize is the number of corrections applied per write
	// transaction.
	DefaultBatchSize = 100_000
	// DefaultProgressInterval is the number of corrections between
	// progress log lines.
	DefaultProgressInterval = 10_000
)

// Plan selects the refactorings of a run.
type Plan struct {
	Structure   bool
	NullIndices bool
	FixFloats   bool
	// Links, Properties and Blobs enable the full consistency passes. They
	// scan every index of every type and are not gated by settings.
	Links      bool
	Properties bool
	Blobs      bool

	BatchSize        int
	ProgressInterval int
}

// DefaultPlan runs the cheap refactorings that every open may run.
func DefaultPlan() Plan {
	return Plan{
		Structure:        true,
		NullIndices:      true,
		FixFloats:        true,
		BatchSize:        DefaultBatchSize,
		ProgressInterval: DefaultProgressInterval,
	}
}

// FullPlan runs every refactoring including the consistency passes.
func FullPlan() Plan {
	p := DefaultPlan()
	p.Links = true
	p.Properties = true
	p.Blobs = true
	return p
}

// Report describes the work of one pass for one entity type.
type Report struct {
	Pass     Pass
	TypeID   int32
	TypeName string

	Scanned         int64
	Phantom         int64
	Missing         int64
	Redundant       int64
	Rewritten       int64
	DeletedEntities int64

	// Skipped is set when the type was skipped after a read-only
	// transaction race; the pass runs again on the next invocation.
	Skipped  bool
	Duration time.Duration
}

// Changes returns the number of rows the pass changed.
func (r Report) Changes() int64 {
	return r.Phantom + r.Missing + r.Redundant + r.Rewritten + r.DeletedEntities
}

// Refactorings runs repair passes over a store.
type Refactorings struct {
	s    *Store
	plan Plan
	log  *slog.Logger
}

// Refactorings returns the refactoring runner of the store.
func (s *Store) Refactorings() *Refactorings {
	return &Refactorings{s: s, plan: DefaultPlan(), log: s.logger.With("component", "refactorings")}
}

// Run executes the passes selected by plan in the order the Plan fields
// are declared, starting with structural maintenance and ending with blob
// consistency. A pass that has started for an entity type runs to
// completion; ctx is checked between types.
func (r *Refactorings) Run(ctx context.Context, plan Plan) ([]Report, error) {
	if err := r.s.checkOpen(); err != nil {
		return nil, err
	}
	if plan.BatchSize <= 0 {
		plan.BatchSize = DefaultBatchSize
	}
	if plan.ProgressInterval <= 0 {
		plan.ProgressInterval = DefaultProgressInterval
	}
	r.plan = plan

	if err := r.s.resourceController.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer r.s.resourceController.ReleaseBackground()

	var reports []Report
	steps := []struct {
		enabled bool
		run     func(context.Context) ([]Report, error)
	}{
		{plan.Structure, r.Structure},
		{plan.NullIndices, r.NullIndices},
		{plan.FixFloats, r.FixNegativeFloats},
		{plan.Links, r.LinksConsistency},
		{plan.Properties, r.PropertiesConsistency},
		{plan.Blobs, r.BlobsConsistency},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		reps, err := step.run(ctx)
		reports = append(reports, reps...)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// forEachEntityType runs fn for every entity type. A read-only
// transaction race skips the type; every other error stops the pass.
func (r *Refactorings) forEachEntityType(ctx context.Context, pass Pass, fn func(ctx context.Context, et EntityType, rep *Report) error) ([]Report, error) {
	var types []EntityType
	err := r.s.env.ExecuteInReadonlyTransaction(func(txn *env.Txn) error {
		var err error
		types, err = r.s.EntityTypes(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	var reports []Report
	for _, et := range types {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep := Report{Pass: pass, TypeID: et.ID, TypeName: et.Name}
		start := time.Now()
		err := fn(context.WithoutCancel(ctx), et, &rep)
		rep.Duration = time.Since(start)
		if errors.Is(err, env.ErrReadonlyTransaction) {
			r.log.Warn("skipping entity type, tables changed during scan", "pass", pass, "type", et.Name, "error", err)
			rep = Report{Pass: pass, TypeID: et.ID, TypeName: et.Name, Skipped: true, Duration: rep.Duration}
			err = nil
		}
		if err != nil {
			return reports, fmt.Errorf("%s refactoring of type %s: %w", pass, et.Name, memoryFatal(pass, err))
		}
		r.s.metrics.observe(rep)
		if rep.Changes() > 0 {
			r.log.Info("refactoring applied", "pass", pass, "type", et.Name,
				"scanned", rep.Scanned, "phantom", rep.Phantom, "missing", rep.Missing,
				"redundant", rep.Redundant, "rewritten", rep.Rewritten, "deleted_entities", rep.DeletedEntities)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func memoryFatal(pass Pass, err error) error {
	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fatal(string(pass), err)
	}
	return err
}

// snapshot runs fn in a read-only transaction.
func (r *Refactorings) snapshot(fn func(txn *env.Txn) error) error {
	return r.s.env.ExecuteInReadonlyTransaction(fn)
}

// liveEntities returns the local ids of every entity of typeID in txn.
func (r *Refactorings) liveEntities(txn *env.Txn, typeID int32) (*roaring64.Bitmap, error) {
	live := roaring64.New()
	err := r.s.tables.Get(typeID).Entities.Scan(txn, func(k, _ []byte) (bool, error) {
		id, err := codec.LocalID(k)
		if err != nil {
			r.log.Warn("skipping malformed entity row", "type", typeID, "error", err)
			return true, nil
		}
		live.Add(uint64(id))
		return true, nil
	})
	return live, err
}

// liveCache holds the live entity sets of the types visited by one scan.
type liveCache struct {
	r      *Refactorings
	txn    *env.Txn
	charge *resource.Charge
	sets   map[int32]*roaring64.Bitmap
}

func (r *Refactorings) newLiveCache(txn *env.Txn, charge *resource.Charge) *liveCache {
	return &liveCache{r: r, txn: txn, charge: charge, sets: make(map[int32]*roaring64.Bitmap)}
}

func (c *liveCache) get(typeID int32) (*roaring64.Bitmap, error) {
	if bm, ok := c.sets[typeID]; ok {
		return bm, nil
	}
	bm, err := c.r.liveEntities(c.txn, typeID)
	if err != nil {
		return nil, err
	}
	if err := c.charge.Add(int64(bm.GetSizeInBytes())); err != nil {
		return nil, err
	}
	c.sets[typeID] = bm
	return bm, nil
}

func (c *liveCache) exists(id codec.EntityID) (bool, error) {
	bm, err := c.get(id.TypeID)
	if err != nil {
		return false, err
	}
	return bm.Contains(uint64(id.LocalID)), nil
}

// batch applies corrections in a sequence of write transactions of at most
// BatchSize corrections each. Every boundary commits and releases the
// writer slot; the row throttle waits between transactions. Callers must
// read b.txn after every step and never keep a cursor of it across one.
type batch struct {
	r     *Refactorings
	ctx   context.Context
	pass  Pass
	typ   string
	txn   *env.Txn
	n     int
	total int64
}

func (r *Refactorings) beginBatch(ctx context.Context, pass Pass, typeName string) (*batch, error) {
	txn, err := r.s.env.BeginTransaction()
	if err != nil {
		return nil, err
	}
	return &batch{r: r, ctx: ctx, pass: pass, typ: typeName, txn: txn}, nil
}

// step counts one correction.
func (b *batch) step() error {
	b.n++
	b.total++
	if b.total%int64(b.r.plan.ProgressInterval) == 0 {
		b.r.log.Info("refactoring progress", "pass", b.pass, "type", b.typ, "corrections", b.total)
	}
	if b.n >= b.r.plan.BatchSize {
		return b.flush()
	}
	return nil
}

// flush commits the current transaction, throttles and begins the next
// one. Once flush returns, the corrections so far are durable.
func (b *batch) flush() error {
	if !b.txn.Dirty() {
		b.n = 0
		return nil
	}
	if err := b.txn.Commit(); err != nil {
		return fatal(string(b.pass)+" flush", err)
	}
	n := b.n
	b.n = 0
	if err := b.r.s.resourceController.AcquireRows(b.ctx, n); err != nil {
		return err
	}
	txn, err := b.r.s.env.BeginTransaction()
	if err != nil {
		return err
	}
	b.txn = txn
	return nil
}

func (b *batch) commit() error {
	if err := b.txn.Commit(); err != nil {
		return fatal(string(b.pass)+" commit", err)
	}
	return b.r.s.resourceController.AcquireRows(b.ctx, b.n)
}

// abort discards the open transaction. A transaction that an earlier
// failed flush already finished is left alone.
func (b *batch) abort() { b.txn.Abort() }

// apply runs fn in a batch and commits it, aborting on error.
func (r *Refactorings) apply(ctx context.Context, pass Pass, typeName string, fn func(b *batch) error) error {
	b, err := r.beginBatch(ctx, pass, typeName)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		b.abort()
		return err
	}
	return b.commit()
}
