// Package engine implements the entity store core on top of the ordered
// keyed store in internal/env.
//
// The engine orchestrates:
//   - the entity type and name registries and the store sequences
//   - entity, property, link and blob operations over the per-type tables
//   - the refactorings that repair divergence between primary and derived
//     indices (null indices, link and property consistency, the float
//     codec fix-up and structural maintenance)
//   - the backup strategy of a whole store
//
// Mutations take an *env.Txn supplied by the caller; the engine never
// commits a caller's transaction. Refactorings manage their own
// transactions.
package engine
