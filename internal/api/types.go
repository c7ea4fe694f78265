package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// HistoryEntry describes one finished job.
type HistoryEntry struct {
	ID            int64  `json:"id"`
	Stem          string `json:"stem"`
	Title         string `json:"title,omitempty"`
	User          string `json:"user,omitempty"`
	Status        string `json:"status"`
	ErrorKind     string `json:"errorKind,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	PageID        string `json:"pageId,omitempty"`
	WebURL        string `json:"webUrl,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	DurationMS    int64  `json:"durationMs"`
}

// HistoryResponse wraps recent history entries.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Counts  map[string]int `json:"counts,omitempty"`
}

// WatcherStatus summarizes the folder watcher.
type WatcherStatus struct {
	Dir          string `json:"dir"`
	PushActive   bool   `json:"pushActive"`
	Requests     int64  `json:"requests"`
	ScansRun     int64  `json:"scansRun"`
	ScansDropped int64  `json:"scansDropped"`
	LastScan     string `json:"lastScan,omitempty"`
	LastStaged   int    `json:"lastStaged"`
	LastError    string `json:"lastError,omitempty"`
}

// StagerStatus summarizes jobs staged and finished since startup.
type StagerStatus struct {
	Staged     int      `json:"staged"`
	Skipped    int      `json:"skipped"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	LastStaged string   `json:"lastStaged,omitempty"`
	InFlight   []string `json:"inFlight"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueRoot    string             `json:"queueRoot"`
	LockFilePath string             `json:"lockFilePath"`
	HistoryPath  string             `json:"historyPath,omitempty"`
	Target       string             `json:"target"`
	Mode         string             `json:"mode"`
	Queue        map[string]int     `json:"queue"`
	Watcher      WatcherStatus      `json:"watcher"`
	Stager       StagerStatus       `json:"stager"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
