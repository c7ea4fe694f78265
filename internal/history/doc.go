// Package history keeps an informational SQLite ledger of finished jobs.
//
// The filesystem queue stays the only source of job state; the ledger exists
// so operators can see what was uploaded, where it landed, and why a job
// failed without digging through logs.
package history
