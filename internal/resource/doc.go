// Package resource governs what maintenance work may consume while the
// store stays live.
//
//   - Memory: pending corrections of a refactoring pass are charged against
//     a fail-fast budget.
//   - Background slots: bound the number of maintenance jobs (refactoring
//     passes, backup copies) running at once.
//   - Rates: token buckets for corrected rows per second and backup bytes
//     per second, so that maintenance does not starve foreground writers.
//
// All Controller methods are safe for concurrent use and are no-ops on a
// nil Controller.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	    RowsPerSec:       50_000,
//	})
//	if err := rc.AcquireMemory(n); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(n)
package resource
