package queue

import "time"

// AnalysisTask asks the worker to run delivery analytics for a session
type AnalysisTask struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	ContentHash string    `json:"content_hash"`
	TurnCount   int       `json:"turn_count"`
	Requeued    bool      `json:"requeued,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
