// Package reconcile resolves duplicate Event groups.
//
// For each group the engine keeps one member, relinks every dependent record
// that references a superseded member, rewrites the kept member's identifier
// to the canonical value, and only then deletes the superseded members.
//
// # Ordering
//
// The store offers no multi-record transactions, so safety comes from order:
//
//  1. Dependents are relinked (textual ids and link fields).
//  2. Classes that now share an Event and a name are merged, with the same
//     relink-before-delete order one level down.
//  3. The kept Event's identifier is rewritten.
//  4. Superseded Events are deleted.
//
// A run killed at any point leaves no dependent pointing at a deleted record,
// and re-running converges: the next run finds the same group, keeps the same
// member, and finishes the remaining steps.
//
// # Failure isolation
//
// Any failure inside a group marks that group errored and skips its deletes;
// the run continues with the next group. A permission-denied error on an
// optional dependent table skips that dependent for the rest of the run.
//
// # Dry run
//
// Every decision is computed from store reads taken before the group's first
// write, so a dry-run Executor and a live one produce identical decisions.
package reconcile
