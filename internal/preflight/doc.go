// Package preflight provides readiness checks for the filesystem queue,
// external tools, and the upload endpoint the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check.
//     A failure does not stop the daemon; the queue keeps collecting jobs.
//   - The CLI "status" command uses the individual check functions to
//     display readiness next to the queue counts.
package preflight
