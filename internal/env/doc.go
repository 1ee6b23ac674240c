// Package env implements the ordered keyed store the entity engine runs on.
//
// An Environment is a directory of append-only log files. Every committed
// write transaction appends exactly one CRC framed record; files are named
// after the global address of their first byte (%016x.xd), so the address
// just past the last committed record (the high address) identifies a
// consistent prefix of the log.
//
// Committed state lives in memory as a set of named stores, each an ordered
// B-tree that is cloned copy-on-write by the single writer. A read-only
// transaction pins one immutable version together with its high address and
// never blocks the writer.
//
// Stores opened with duplicates order their entries by (key, value), which
// gives the duplicate-key cursor contract used by secondary indices:
//
//	c := store.OpenCursor(txn)
//	defer c.Close()
//	for ok := c.SearchKey(key) != nil; ok; ok = c.NextDup() {
//	    use(c.Value())
//	}
package env
