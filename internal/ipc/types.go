package ipc

import "github.com/lad75020/SendToOneNote/internal/api"

// serviceName is the RPC receiver name registered on the socket.
const serviceName = "SendToOneNote"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon, queue, and watcher state.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// RescanRequest triggers an immediate scan of Incoming.
type RescanRequest struct{}

// RescanResponse reports how many jobs the scan staged.
type RescanResponse struct {
	Staged int `json:"staged"`
}

// RestartWatcherRequest re-arms the folder watcher.
type RestartWatcherRequest struct{}

// RestartWatcherResponse reports the restart outcome.
type RestartWatcherResponse struct {
	Restarted bool   `json:"restarted"`
	Message   string `json:"message,omitempty"`
}

// RequeueRequest names failed jobs to move back to Incoming.
type RequeueRequest struct {
	Stems []string `json:"stems"`
	All   bool     `json:"all"`
}

// RequeueResponse lists the stems that were moved.
type RequeueResponse struct {
	Moved []string `json:"moved"`
}

// HistoryRequest limits how many entries are returned.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse wraps recent history entries.
type HistoryResponse = api.HistoryResponse

// LogTailRequest reads from the daemon log.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match"`
}

// LogTailResponse returns lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
