// Package harness runs sealing conformance scenarios.
//
// A scenario seals one dataset under every listed config and seed, audits
// each sealed world, re-seals it independently, and checks the outcome
// against assertions. A deterministic summary of every run is compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: chain_level2
//	description: "Three-record chain sealed at level 2"
//	dataset: ../datasets/chain.yaml   # or fixture: chain|numeric|corpus
//	reference: ../datasets/chain.yaml # adversary corpus, defaults to dataset
//	configs:
//	  - level: 2
//	  - name: coarse
//	    level: 2
//	    numeric: 0.5
//	    buckets: 5
//	seeds: ["42"]
//	budgets: [8, 16, 32]
//	floor: 0.5                        # optional pareto floor
//	assertions:
//	  - type: edge_count
//	    count: 2
//	  - type: verify_swapped_fails
//
// # Assertion Types
//
// Per-run assertions:
//
//   - record_count, edge_count, curve_points: exact counts
//   - deterministic: an independent re-seal yields the same bytes
//   - verify_mapping: the true alias mapping verifies against the codebook
//   - verify_swapped_fails: swapping two aliases' keys fails verification
//   - no_leaks: no canonical key occurs in any published field
//   - buckets_monotone, order_preserved: numeric bucketing of a field
//   - curve_monotone: black-box success never decreases with budget
//   - error_kind: the run failed with the given error kind
//
// Scenario-wide:
//
//   - feasible: the pareto reporter recommends a point at the floor
//
// # Deterministic Testing
//
// Scenarios seal under a fixed test master secret and store reports in a
// fresh in-memory SQLite database. Summaries carry counts and booleans
// only, never hashes or attack rates, so golden files are stable.
package harness
