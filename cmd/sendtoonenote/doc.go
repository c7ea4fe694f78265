// Command sendtoonenote runs the print-job ingestion daemon and the operator
// commands that control it.
//
// `sendtoonenote run` hosts the daemon in the foreground; `start` launches it
// detached. Queue commands (rescan, restart-watcher, requeue) talk to the
// running daemon over its Unix socket, while submit, preview and the notebook
// listing commands work without one.
package main
