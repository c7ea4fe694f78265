// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Status
// and history payloads reuse the api package types so the HTTP and socket
// surfaces report identical shapes.
package ipc
