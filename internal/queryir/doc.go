// Package queryir provides the filter intermediate representation for record
// store reads.
//
// QueryIR is the abstraction boundary between callers that need "all dependents
// referencing these identifiers" and the backends that answer it:
//
//	[grouper / reconcile / validate] → [Query IR] → [SQLite store (querysql)]
//	                                              → [hosted store (formula)]
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only types
// in this package implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Contains:
//	case HasLink:
//	case And:
//	case Or:
//	}
//
// VALUES:
//
// Equals values are restricted to string, int64 and bool. Floats are rejected
// by Validate; the hosted store and SQLite disagree on their textual form.
package queryir
