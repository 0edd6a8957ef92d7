// Package naming implements persistent references: stable names for
// geometry whose kernel ids change on every rebuild.
//
// A PersistentRef names an element by its origin feature, a local selector
// (how that feature produced it) and a fingerprint (where it was and how big
// it was). Refs travel as opaque tokens: "pr1." + base64url(canonical JSON).
//
// Sketch loops get canonical identities (LoopID) so that selectors such as
// {kind: "extrude.cap", data: {end, loopId}} survive unrelated edits and
// merges.
//
// Resolution never binds silently: an ambiguous or missing match comes back
// as a BrokenReferenceError with candidate tokens for explicit repair.
package naming
