package env

import "bytes"

type cursorState uint8

const (
	cursorUnpositioned cursorState = iota
	cursorPositioned
	cursorExhausted
)

// Cursor iterates a store in key (then value) order. It tolerates
// modification of the store through the same transaction, including
// DeleteCurrent, because every step searches relative to the last entry.
type Cursor struct {
	txn    *Txn
	store  *Store
	cur    entry
	state  cursorState
	closed bool
}

func (c *Cursor) tree() *storeState {
	if c.closed {
		return nil
	}
	return c.txn.read(c.store.name)
}

func (c *Cursor) moveTo(e entry, ok bool) bool {
	if !ok {
		c.state = cursorExhausted
		return false
	}
	c.cur = e
	c.state = cursorPositioned
	return true
}

// Next moves to the next entry; on an unpositioned cursor to the first one.
func (c *Cursor) Next() bool {
	st := c.tree()
	if st == nil || c.state == cursorExhausted {
		return false
	}
	if c.state == cursorUnpositioned {
		e, ok := st.tree.Min()
		return c.moveTo(e, ok)
	}
	return c.moveTo(st.after(c.cur))
}

// NextDup moves to the next entry with the same key.
func (c *Cursor) NextDup() bool {
	st := c.tree()
	if st == nil || c.state != cursorPositioned {
		return false
	}
	e, ok := st.after(c.cur)
	if !ok || !bytes.Equal(e.key, c.cur.key) {
		return false
	}
	c.cur = e
	return true
}

// NextNoDup moves to the first entry with a greater key.
func (c *Cursor) NextNoDup() bool {
	st := c.tree()
	if st == nil || c.state == cursorExhausted {
		return false
	}
	if c.state == cursorUnpositioned {
		return c.Next()
	}
	return c.moveTo(st.afterKey(c.cur.key))
}

// SearchKey positions the cursor on the first entry with key.
func (c *Cursor) SearchKey(key []byte) bool {
	st := c.tree()
	if st == nil {
		return false
	}
	e, ok := st.first(entry{key: key})
	if !ok || !bytes.Equal(e.key, key) {
		return false
	}
	return c.moveTo(e, true)
}

// SearchKeyRange positions the cursor on the first entry with a key >= key.
func (c *Cursor) SearchKeyRange(key []byte) bool {
	st := c.tree()
	if st == nil {
		return false
	}
	return c.moveTo(st.first(entry{key: key}))
}

// SearchBoth positions the cursor on the exact (key, value) pair.
func (c *Cursor) SearchBoth(key, value []byte) bool {
	st := c.tree()
	if st == nil {
		return false
	}
	e, ok := st.tree.Get(entry{key: key, value: value})
	if !ok || !bytes.Equal(e.value, value) {
		return false
	}
	return c.moveTo(e, true)
}

// Key returns the key of the current entry.
func (c *Cursor) Key() []byte { return c.cur.key }

// Value returns the value of the current entry.
func (c *Cursor) Value() []byte { return c.cur.value }

// DeleteCurrent deletes the current entry. The cursor stays positioned
// so that Next continues with the following entry.
func (c *Cursor) DeleteCurrent() (bool, error) {
	if c.closed || c.state != cursorPositioned {
		return false, nil
	}
	return c.store.DeleteExact(c.txn, c.cur.key, c.cur.value)
}

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() {
	c.closed = true
}
