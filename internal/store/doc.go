// Package store persists shelf images, detections, and catalog candidates in
// SQLite and exposes helpers for driving the enrichment lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stuck-detection recovery, and the status transitions the pipeline
// orchestrator relies on. Candidate rows are keyed by (detection, candidate,
// stage) and upserts converge on the strongest match verdict, which makes
// retried stages safe under concurrency.
//
// The database is the single source of truth for enrichment state. Schema
// changes bump the version in schema.go; users delete the database to adopt
// the new schema.
package store
