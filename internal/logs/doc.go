// Package logs tails the daemon log file for the CLI "logs" command and the
// LogTail RPC.
//
// Negative offsets mean "last N lines"; a positive offset resumes where the
// previous call stopped, and follow mode waits for new lines. An optional
// substring filter narrows output to one job stem or correlation id.
package logs
