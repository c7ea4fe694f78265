// Package daemon coordinates the long-running ingestion process.
//
// It owns the single-instance flock, recovers jobs stranded in Processing,
// starts the folder watcher that feeds the stager, schedules archive
// retention, and serves the optional HTTP status API. Queue maintenance
// (rescan, requeue, watcher restart) is exposed here so the IPC layer stays
// a thin translation.
//
// Keep orchestration logic here: extraction and upload live in their own
// packages while the daemon focuses on startup, shutdown, and coordination.
package daemon
