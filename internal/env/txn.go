package env

import (
	"fmt"
	"maps"
)

// Txn is a transaction. Read-only transactions see an immutable snapshot;
// write transactions hold the environment's single writer slot until they
// commit or abort.
type Txn struct {
	env      *Environment
	readonly bool
	finished bool

	base   *version
	stores map[string]*storeState
	owned  map[string]bool
	ops    []op
	hooks  []func()
}

// IsReadonly reports whether the transaction is read-only.
func (t *Txn) IsReadonly() bool { return t.readonly }

// IsFinished reports whether the transaction was committed or aborted.
func (t *Txn) IsFinished() bool { return t.finished }

// HighAddress returns the log address of the snapshot the transaction reads.
func (t *Txn) HighAddress() int64 { return t.base.highAddress }

// Environment returns the owning environment.
func (t *Txn) Environment() *Environment { return t.env }

// Dirty reports whether the transaction has unflushed changes.
func (t *Txn) Dirty() bool { return len(t.ops) > 0 }

func (t *Txn) check() error {
	if t.finished {
		return ErrFinished
	}
	return nil
}

func (t *Txn) checkWrite() error {
	if err := t.check(); err != nil {
		return err
	}
	if t.readonly {
		return ErrReadonlyTransaction
	}
	return nil
}

// read returns the state of the named store or nil if it does not exist.
func (t *Txn) read(name string) *storeState {
	return t.stores[name]
}

// mutable returns a private copy of the named store for modification.
func (t *Txn) mutable(name string) (*storeState, error) {
	if err := t.checkWrite(); err != nil {
		return nil, err
	}
	s, ok := t.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	if !t.owned[name] {
		s = s.clone()
		t.stores[name] = s
		t.owned[name] = true
	}
	return s, nil
}

// AfterCommit registers fn to run once the changes made so far are
// durable in the log. Hooks of an aborted transaction never run.
func (t *Txn) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func (t *Txn) runHooks() {
	hooks := t.hooks
	t.hooks = nil
	for _, fn := range hooks {
		fn()
	}
}

// Flush commits the changes made so far and keeps the transaction open on
// the new committed version. A failed flush leaves the transaction unusable
// and must be treated as fatal by the caller.
func (t *Txn) Flush() error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if len(t.ops) == 0 {
		t.runHooks()
		return nil
	}
	high, err := t.env.log.append(encodeOps(t.ops))
	if err != nil {
		t.Abort()
		return fmt.Errorf("env: flush failed: %w", err)
	}

	published := &version{stores: t.stores, highAddress: high}
	t.env.current.Store(published)

	t.base = published
	t.stores = maps.Clone(published.stores)
	t.owned = make(map[string]bool)
	t.ops = t.ops[:0]
	t.runHooks()
	return nil
}

// Commit flushes the changes and finishes the transaction.
func (t *Txn) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	if t.readonly {
		t.finish()
		return nil
	}
	if err := t.Flush(); err != nil {
		return err
	}
	t.finish()
	return nil
}

// Abort discards unflushed changes and finishes the transaction.
func (t *Txn) Abort() {
	if t.finished {
		return
	}
	t.ops = nil
	t.hooks = nil
	t.finish()
}

func (t *Txn) abortIfActive() {
	if !t.finished {
		t.Abort()
	}
}

func (t *Txn) finish() {
	t.finished = true
	if !t.readonly {
		t.env.writeMu.Unlock()
	}
}
