// Package ingest owns the filesystem job queue.
//
// A job is a document (PDF or PostScript) plus a JSON sidecar sharing its
// stem. The Stager pairs them in Incoming, stages both into Processing with
// exclusive-create copies, decodes the sidecar, and hands the job to the
// Pipeline (prepare, extract, upload). The outcome decides whether both files
// land in Done or Failed. Terminal jobs are never retried automatically; an
// operator requeues them from Failed.
//
// Every filesystem mutation of the queue is serialized by the Stager so scans,
// terminal moves and requeues never interleave.
package ingest
