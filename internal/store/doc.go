// Package store provides SQLite-backed durable storage for sealbench's
// private side.
//
// The store holds:
//   - Codebooks: private envelopes, write-once per (dataset_version, seed)
//   - World manifests: content hashes of every published sealed world
//   - Audit reports: black-box and white-box results keyed by report ID
//
// # Invariants
//
// Codebooks are never overwritten. A second save for the same
// (dataset_version, seed) fails with ir.KindCodebookExists and leaves the
// stored envelope untouched.
//
// All list queries order deterministically with COLLATE BINARY so that two
// reads of the same database return the same sequence.
//
// Envelopes are stored exactly as codebook.Export produced them. When the
// codebook store is configured with age recipients the database never sees
// plaintext mappings.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s on lock contention
//   - foreign_keys=ON
package store
