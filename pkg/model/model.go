package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the status of an analysis job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// MaxJobAttempts bounds how often a failed analysis is retried.
const MaxJobAttempts = 3

// JSONB represents a JSONB field for PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Session represents one finished voice interview
type Session struct {
	ID          string    `json:"id" db:"id"`
	CandidateID string    `json:"candidate_id" db:"candidate_id"`
	JobTitle    string    `json:"job_title" db:"job_title"`
	Meta        JSONB     `json:"meta" db:"meta"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TurnRecord is one stored transcript message of a session. Timestamp is in
// seconds from session start; EmotionFeatures is kept verbatim as delivered
// by the voice provider (object, encoded string or null).
type TurnRecord struct {
	ID              string          `json:"id" db:"id"`
	SessionID       string          `json:"session_id" db:"session_id"`
	Position        int             `json:"position" db:"position"`
	Role            string          `json:"role" db:"role"`
	Text            string          `json:"text" db:"text"`
	Timestamp       float64         `json:"timestamp" db:"timestamp"`
	EmotionFeatures json.RawMessage `json:"emotion_features,omitempty" db:"emotion_features"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// AnalysisJob represents a queued delivery-analysis run for a session
type AnalysisJob struct {
	ID          string    `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	Status      JobStatus `json:"status" db:"status"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Attempts    int       `json:"attempts" db:"attempts"`
	ErrorText   *string   `json:"error_text,omitempty" db:"error_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SpeechReport is the persisted output of the analytics engine for a session.
// MeanConfidence is nil when the time series was empty (insufficient data).
type SpeechReport struct {
	ID             string          `json:"id" db:"id"`
	SessionID      string          `json:"session_id" db:"session_id"`
	JobID          string          `json:"job_id" db:"job_id"`
	ContentHash    string          `json:"content_hash" db:"content_hash"`
	AveragePace    int             `json:"average_pace" db:"average_pace"`
	PaceRating     string          `json:"pace_rating" db:"pace_rating"`
	TotalFillers   int             `json:"total_fillers" db:"total_fillers"`
	MeanConfidence *int            `json:"mean_confidence,omitempty" db:"mean_confidence"`
	Result         json.RawMessage `json:"result" db:"result"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// IsCompleted returns true if the job is in a final state
func (j *AnalysisJob) IsCompleted() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// CanRetry returns true if the job can be retried
func (j *AnalysisJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < MaxJobAttempts
}

// IncrementAttempts increases the attempt counter
func (j *AnalysisJob) IncrementAttempts() {
	j.Attempts++
}

// SetError sets the job status to failed with error message
func (j *AnalysisJob) SetError(errorText string) {
	j.Status = JobStatusFailed
	j.ErrorText = &errorText
	j.UpdatedAt = time.Now()
}

// SetCompleted sets the job status to done
func (j *AnalysisJob) SetCompleted() {
	j.Status = JobStatusDone
	j.UpdatedAt = time.Now()
}

// SetInProgress sets the job status to in progress
func (j *AnalysisJob) SetInProgress() {
	j.Status = JobStatusInProgress
	j.UpdatedAt = time.Now()
}

// TranscriptHash fingerprints a transcript's analysis-relevant content.
// Reports are memoized on this hash: identical turn lists hash identically,
// so recomputation of an unchanged transcript can be skipped.
func TranscriptHash(turns []TurnRecord) string {
	h := sha256.New()
	for _, turn := range turns {
		fmt.Fprintf(h, "%s\x1f%s\x1f%g\x1f%s\x1e", turn.Role, turn.Text, turn.Timestamp, turn.EmotionFeatures)
	}
	return hex.EncodeToString(h.Sum(nil))
}
