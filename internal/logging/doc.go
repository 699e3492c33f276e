// Package logging builds the slog loggers used across shelfscan and
// defines the canonical structured field names shared by the pipeline,
// stores, and CLI output.
package logging
