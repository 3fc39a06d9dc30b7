// Package codebook owns the private half of a sealing run.
//
// A Codebook holds the per-seed key material, the alias to canonical key
// mapping and the keyed verification digests for lexical, structural and
// numeric sealing. Its fields are unexported and it refuses every generic
// encoder (JSON, YAML, text): the only way out of the process is Export,
// which produces a marked private envelope that public sinks reject by
// pattern.
//
// The Store is the single authority that answers "is this candidate mapping
// correct". It is write-once per (dataset_version, seed) and safe for
// unlimited concurrent readers.
package codebook
