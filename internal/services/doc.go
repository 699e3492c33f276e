// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp image, detection, and batch identifiers plus
//     correlation IDs for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (retryable, batch-aborting) consistent across stages.
//   - The RetryPolicy shared by the vision and catalog clients so backoff and
//     Retry-After handling behave the same everywhere.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
