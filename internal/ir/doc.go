// Package ir provides the typed value representation shared by rulesql
// packages.
//
// Attribute values supplied by entity definitions, CLI flags and harness
// scenarios are all decoded into IRValue before they reach the rule engine.
// ir imports nothing internal; every other package may import it.
//
// Key design constraints:
//   - NO float types (numbers are int64) so fingerprints stay deterministic
//   - IRNull means "unset" when it appears in attribute values
//   - Canonical JSON (RFC 8785 ordering, NFC strings) backs statement fingerprints
package ir
