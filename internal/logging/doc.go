// Package logging constructs slog loggers with console and JSON handlers and
// provides the standardized attribute helpers used across the pipeline.
//
// Components receive child loggers via NewComponentLogger so every record
// carries a component field. Context-scoped fields (asset index, stage,
// request id) are attached with WithContext.
package logging
