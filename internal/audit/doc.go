// Package audit makes leakage claims about a sealed world executable.
//
// Two procedures exist. The black-box budget attack simulates an adversary
// that sees only the sealed world and may spend a bounded number of probes
// against a target system (a Prober). The white-box recovery audit checks
// attacker-proposed alias mappings against the codebook with exact-match
// verification only.
//
// Reports carry a name-based ID so that re-running an audit over the same
// artifact yields the same identifier.
package audit
