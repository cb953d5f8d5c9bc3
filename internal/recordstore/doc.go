// Package recordstore defines the narrow contract every tabular record store
// implements: filtered, paginated reads exposed as a pull iterator, and
// batched create/update/delete bounded by MaxBatch.
//
// Two implementations exist: internal/airtable (hosted store over HTTP) and
// internal/store (SQLite). Callers depend only on Client.
package recordstore
