package ipc

import (
	"splicer/internal/deletion"
	"splicer/internal/history"
	"splicer/internal/jobs"
)

// MediaInfoRequest asks for the duration and size of a file.
type MediaInfoRequest struct {
	Path string `json:"path"`
}

// MediaInfoResponse carries probe results. Error is set when the file exists
// but could not be probed; size is still reported in that case.
type MediaInfoResponse struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	VideoStreams    int     `json:"video_streams"`
	AudioStreams    int     `json:"audio_streams"`
	Error           string  `json:"error,omitempty"`
}

// StartMergeRequest starts concatenating Inputs into Output.
type StartMergeRequest struct {
	Inputs []string `json:"inputs"`
	Output string   `json:"output"`
}

// StartMergeResponse returns the job id, or the rejection reason.
type StartMergeResponse struct {
	JobID     string `json:"job_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// EventsRequest polls a job's events after SinceSeq.
type EventsRequest struct {
	JobID    string `json:"job_id"`
	SinceSeq int64  `json:"since_seq"`
}

// EventsResponse lists new events. Done is true once the terminal event has
// been buffered.
type EventsResponse struct {
	Events []jobs.Event `json:"events"`
	Done   bool         `json:"done"`
}

// CancelMergeRequest cancels the active merge and deletes Output.
type CancelMergeRequest struct {
	Output string `json:"output"`
}

// CancelMergeResponse reports whether the output was removed.
type CancelMergeResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// ForceDeleteRequest force-deletes Path.
type ForceDeleteRequest struct {
	Path string `json:"path"`
}

// ForceDeleteResponse reports the deletion outcome and its attempt log.
type ForceDeleteResponse struct {
	Success     bool               `json:"success"`
	Reason      string             `json:"reason,omitempty"`
	Error       string             `json:"error,omitempty"`
	Remediation string             `json:"remediation,omitempty"`
	Attempts    []deletion.Attempt `json:"attempts,omitempty"`
}

// FileExistsRequest checks Path.
type FileExistsRequest struct {
	Path string `json:"path"`
}

// FileExistsResponse reports whether the path exists.
type FileExistsResponse struct {
	Exists bool `json:"exists"`
}

// FileSizeRequest asks for the size of Path.
type FileSizeRequest struct {
	Path string `json:"path"`
}

// FileSizeResponse carries the size in bytes.
type FileSizeResponse struct {
	Size int64 `json:"size"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckStatus is one preflight check result.
type CheckStatus struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// StatusResponse represents daemon status information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Job          *jobs.Snapshot     `json:"job,omitempty"`
	LockPath     string             `json:"lock_path"`
	HistoryPath  string             `json:"history_path,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckStatus      `json:"checks"`
}

// ToolCheckRequest asks for external tool versions.
type ToolCheckRequest struct{}

// ToolInfo describes one external tool.
type ToolInfo struct {
	Path      string `json:"path"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ToolCheckResponse lists tool versions.
type ToolCheckResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// HistoryRequest lists up to Limit recorded jobs, or only JobID when set.
type HistoryRequest struct {
	Limit int    `json:"limit"`
	JobID string `json:"job_id,omitempty"`
}

// HistoryResponse contains recorded jobs, newest first.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
