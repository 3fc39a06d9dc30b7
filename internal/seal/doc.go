// Package seal implements the sealing transformation engine.
//
// Seal turns a canonical dataset into a public SealedWorld and a private
// Codebook by applying four operators in a fixed order: identifier, lexical,
// structural, numeric. Every pseudo-random choice is drawn from keys derived
// from the engine's master secret, the dataset version and the seed, so
// identical input, config and seed always yield byte-identical output.
//
// The engine performs no I/O. Persisting the codebook is the caller's job
// (see codebook.Store) and publishing the world goes through export.
package seal
