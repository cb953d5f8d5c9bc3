// Package model provides the record and entity types shared by every rekey package.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Record.ID is the store's own record id; Event.EventID / Class.ClassID are the
//     derived textual identifiers. The two are never interchangeable.
//   - Linked-record fields are always []string of record ids, even when the store
//     hands back []any.
//   - Field names are configurable; EventFields / ClassFields carry the mapping.
package model
