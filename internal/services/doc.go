// Package services provides the shared error taxonomy, retry policy, and
// context plumbing used by every network-facing component of the pipeline.
//
// Errors are classified by wrapping them with one of the exported sentinel
// markers via Wrap. The orchestrator keys whole-run versus per-item failure
// decisions off those markers, so network clients must tag every error they
// return.
package services
