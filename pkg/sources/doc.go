// Package sources owns every mutation of repository and pin configuration
// files: idempotent entry registration, duplicate removal across all known
// definition files, pin stanza writing, and in-place component enablement.
//
// All operations preserve non-active lines (comments, blanks, malformed
// lines) byte for byte. File processing order is fixed and deterministic:
// the primary file first, then fragment files in lexicographic order, which
// makes the survivor of any duplicate set predictable.
package sources
