// Package api defines wire-format types and converters shared by the IPC and
// HTTP status surfaces. It translates history rows, watcher counters, and
// dependency checks into transport-friendly DTOs so clients render them
// without importing daemon internals.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset.
package api
