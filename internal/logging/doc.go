// Package logging assembles structured slog loggers for the SendToOneNote
// daemon and CLI.
//
// It owns the console and JSON handlers, level parsing and output plumbing, and
// context helpers that tag log lines with the job, stage and correlation id of
// the dispatch that produced them. Warnings and errors go through
// WarnWithContext and ErrorWithContext so each carries an event type and a hint
// for the operator.
package logging
