// Package ir provides the canonical data model for sealbench.
//
// All other internal packages import ir; ir imports nothing internal. It holds
// the canonical records consumed from the upstream source, the sealed world
// and configuration types, the canonical JSON encoder used for every hashed or
// published byte sequence, and the shared error kinds.
//
// Key design constraints:
//   - Canonical JSON never carries floats. Strengths are fingerprinted as
//     parts-per-million integers and sealed numeric values are bucket indexes
//     or exact decimal strings.
//   - All ordering is explicit (sorted keys, sorted aliases). Map iteration
//     order never reaches an output.
//   - All JSON tags use snake_case.
package ir
