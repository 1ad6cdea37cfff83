package worker

import "time"

// JobEvent is published on config.TopicExtractionJob when a job reaches a
// terminal state.
type JobEvent struct {
	SessionID     string    `json:"session_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Documents     []string  `json:"documents"`
	TotalChunks   int       `json:"total_chunks"`
	FailedChunks  int       `json:"failed_chunks"`
	Warnings      []string  `json:"warnings,omitempty"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Partial reports whether a completed job dropped chunks.
func (e JobEvent) Partial() bool {
	return e.FailedChunks > 0
}
