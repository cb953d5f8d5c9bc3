// Package identity derives deterministic identifiers for Events and Classes
// from their natural keys.
//
// Identifier layout:
//
//	<prefix>_<slug1>_<slug2>[_<YYYYMMDD>]_<hash6>
//
// The slugs are lossy (lowercased, diacritics folded, bounded length) so the
// trailing hash is computed over the raw, pipe-joined key parts. Two schools
// that slug to the same text still get distinct identifiers.
//
// Everything here is pure: no I/O, no clock, no randomness. The same key parts
// produce the same identifier in every process.
package identity
