package domain

// Event names emitted to the collaborator
const (
	EventLoadProgress   = "load_progress"
	EventNewLogsBatch   = "new_logs_batch"
	EventLoadingSuccess = "loading_success"
	EventLoadCancelled  = "loading_cancelled"
	EventLoadingError   = "loading_error"
	EventAlreadyLoaded  = "loading_already_loaded"
	EventFileTruncated  = "file_truncated" // Content reset detected by the loader
	EventFileCleared    = "file_cleared"   // Content reset detected by the tailer
	EventMonitoringErr  = "monitoring_error"
)

// IsContentReset reports whether the event tells the collaborator to discard displayed lines
func IsContentReset(name string) bool {
	return name == EventFileTruncated || name == EventFileCleared
}
