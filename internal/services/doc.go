// Package services defines the error markers and context helpers shared by the
// ingestion pipeline and its collaborators.
//
// Errors raised by conversion, extraction, identity and upload code are tagged
// with a sentinel marker through Wrap so the stager can classify failures with
// FailureKind without parsing messages. Context helpers stamp the job stem,
// pipeline stage and correlation id that the logging package turns into
// structured fields.
package services
