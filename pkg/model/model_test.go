package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisJob_StateTransitions(t *testing.T) {
	job := &AnalysisJob{
		ID:        "job-1",
		SessionID: "session-1",
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	job.SetInProgress()
	assert.Equal(t, JobStatusInProgress, job.Status)
	assert.False(t, job.IsCompleted())

	job.SetError("engine failed")
	job.IncrementAttempts()
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.True(t, job.IsCompleted())
	assert.True(t, job.CanRetry())
	assert.Equal(t, "engine failed", *job.ErrorText)

	job.Attempts = MaxJobAttempts
	assert.False(t, job.CanRetry())

	job.SetCompleted()
	assert.Equal(t, JobStatusDone, job.Status)
	assert.False(t, job.CanRetry())
}

func TestTranscriptHash_Deterministic(t *testing.T) {
	turns := []TurnRecord{
		{Role: "user", Text: "hello", Timestamp: 0},
		{Role: "agent", Text: "hi", Timestamp: 2.5, EmotionFeatures: json.RawMessage(`{"Calmness":0.5}`)},
	}

	assert.Equal(t, TranscriptHash(turns), TranscriptHash(turns))
}

func TestTranscriptHash_SensitiveToContentAndOrder(t *testing.T) {
	a := []TurnRecord{
		{Role: "user", Text: "hello", Timestamp: 0},
		{Role: "agent", Text: "hi", Timestamp: 2},
	}
	b := []TurnRecord{
		{Role: "agent", Text: "hi", Timestamp: 2},
		{Role: "user", Text: "hello", Timestamp: 0},
	}
	c := []TurnRecord{
		{Role: "user", Text: "hello there", Timestamp: 0},
		{Role: "agent", Text: "hi", Timestamp: 2},
	}

	assert.NotEqual(t, TranscriptHash(a), TranscriptHash(b))
	assert.NotEqual(t, TranscriptHash(a), TranscriptHash(c))
	assert.NotEqual(t, TranscriptHash(a), TranscriptHash(nil))
}

func TestJSONB_ValueAndScan(t *testing.T) {
	meta := JSONB{"duration": 120.0, "provider": "hume"}

	value, err := meta.Value()
	assert.NoError(t, err)

	var decoded JSONB
	assert.NoError(t, decoded.Scan(value))
	assert.Equal(t, meta, decoded)

	var empty JSONB
	assert.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
