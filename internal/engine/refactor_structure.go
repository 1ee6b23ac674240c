package engine

import (
	"context"
	"time"

	"github.com/hupe1980/entitydb/internal/env"
	"github.com/hupe1980/entitydb/internal/tables"
)

// Structure removes history stores and drops the forward link indices of
// types whose reverse index is empty. The history report carries no type.
func (r *Refactorings) Structure(ctx context.Context) ([]Report, error) {
	hist, err := r.removeHistoryStores(ctx)
	if err != nil {
		return nil, err
	}
	reports := []Report{hist}
	reps, err := r.forEachEntityType(ctx, PassStructure, r.dropForwardOnlyLinks)
	return append(reports, reps...), err
}

func (r *Refactorings) removeHistoryStores(ctx context.Context) (Report, error) {
	rep := Report{Pass: PassStructure, TypeID: -1}
	start := time.Now()
	var names []string
	err := r.snapshot(func(txn *env.Txn) error {
		for _, name := range r.s.env.AllStoreNames(txn) {
			rep.Scanned++
			if tables.IsHistory(name) {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil || len(names) == 0 {
		rep.Duration = time.Since(start)
		return rep, err
	}
	err = r.apply(ctx, PassStructure, "", func(b *batch) error {
		for _, name := range names {
			if !r.s.env.StoreExists(b.txn, name) {
				continue
			}
			if err := r.s.env.RemoveStore(b.txn, name); err != nil {
				return err
			}
			r.log.Info("removed history store", "store", name)
			rep.Phantom++
			if err := b.step(); err != nil {
				return err
			}
		}
		return nil
	})
	rep.Duration = time.Since(start)
	if err == nil {
		r.s.metrics.observe(rep)
	}
	return rep, err
}

func (r *Refactorings) dropForwardOnlyLinks(ctx context.Context, et EntityType, rep *Report) error {
	links := r.s.tables.Get(et.ID).Links
	stale := false
	err := r.snapshot(func(txn *env.Txn) error {
		rep.Scanned++
		stale = links.Second.Count(txn) == 0 && links.First.Count(txn) > 0
		return nil
	})
	if err != nil || !stale {
		return err
	}
	return r.apply(ctx, PassStructure, et.Name, func(b *batch) error {
		if links.Second.Count(b.txn) != 0 {
			return nil
		}
		n := links.First.Count(b.txn)
		if n == 0 {
			return nil
		}
		r.log.Warn("dropping forward link index without reverse index", "type", et.Name, "rows", n)
		if err := links.First.Truncate(b.txn); err != nil {
			return err
		}
		if err := links.All.Truncate(b.txn); err != nil {
			return err
		}
		rep.Phantom += n
		if err := b.step(); err != nil {
			return err
		}
		return r.s.settings.unmark(b.txn, settingNullLinks, et.ID)
	})
}
