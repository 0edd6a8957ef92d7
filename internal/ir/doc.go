// Package ir provides the value model shared by every replicated slot in a
// parcad document, plus its canonical serialization and content hashing.
//
// This package imports nothing internal. All other internal packages import
// ir; keeping it at the bottom of the graph avoids circular dependencies.
//
// Key design constraints:
//   - Values are a sealed set: Null, String, Int, Float, Bool, Array, Object
//   - Floats must be finite; NaN and Inf are rejected at every boundary
//   - Canonical JSON follows RFC 8785 (sorted UTF-16 keys, ES6 numbers, NFC)
//   - Content IDs are SHA-256 over canonical JSON with a domain prefix
package ir
