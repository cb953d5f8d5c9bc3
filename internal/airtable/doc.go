// Package airtable implements recordstore.Client against the hosted
// tabular store's REST API.
//
// Reads page through GET /v0/{base}/{table} with an offset cursor; filters are
// compiled from queryir predicates to the store's formula language.
// Mutations are sent MaxBatch records per call. Every request passes through
// a token-bucket limiter and is retried with exponential backoff on 429 and
// 5xx responses. A 403 maps to recordstore.ErrPermissionDenied so callers can
// skip optional tables.
package airtable
