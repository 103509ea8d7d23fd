package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"cadence/internal/queue"
	"cadence/internal/storage"
	"cadence/pkg/cache"
	"cadence/pkg/logger"
	"cadence/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(true); err != nil {
		panic(err)
	}
	m.Run()
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateSession(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockStorage) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockStorage) CreateTurns(ctx context.Context, turns []model.TurnRecord) error {
	args := m.Called(ctx, turns)
	return args.Error(0)
}

func (m *MockStorage) GetTurnsBySessionID(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TurnRecord), args.Error(1)
}

func (m *MockStorage) CreateAnalysisJob(ctx context.Context, job *model.AnalysisJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockStorage) GetAnalysisJobByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisJob), args.Error(1)
}

func (m *MockStorage) GetSpeechReportBySessionID(ctx context.Context, sessionID string) (*model.SpeechReport, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SpeechReport), args.Error(1)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) PublishTask(task *queue.AnalysisTask) error {
	args := m.Called(task)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestServer() (*Server, *MockStorage, *MockQueue, *MockCache) {
	mockDB := new(MockStorage)
	mockQueue := new(MockQueue)
	mockCache := new(MockCache)
	return NewServer(mockDB, mockQueue, mockCache, 600), mockDB, mockQueue, mockCache
}

func postJSON(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleCreateSession(t *testing.T) {
	server, mockDB, mockQueue, mockCache := newTestServer()

	mockDB.On("CreateSession", mock.Anything, mock.AnythingOfType("*model.Session")).Return(nil)
	mockCache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockDB.On("CreateTurns", mock.Anything, mock.AnythingOfType("[]model.TurnRecord")).Return(nil)
	mockDB.On("CreateAnalysisJob", mock.Anything, mock.AnythingOfType("*model.AnalysisJob")).Return(nil)
	mockQueue.On("PublishTask", mock.AnythingOfType("*queue.AnalysisTask")).Return(nil)

	req := postJSON(t, "/api/v1/sessions", map[string]interface{}{
		"candidate_id": "cand-1",
		"job_title":    "Backend Engineer",
		"turns": []map[string]interface{}{
			{"role": "agent", "text": "Tell me about yourself", "timestamp": 0},
			{"role": "user", "text": "um sure, I work on Go services", "timestamp": 2.5,
				"emotion_features": map[string]interface{}{"Calmness": 0.7}},
		},
	})

	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out enqueueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.SessionID)
	assert.NotEmpty(t, out.JobID)
	assert.Equal(t, string(model.JobStatusQueued), out.Status)

	mockDB.AssertExpectations(t)
	mockQueue.AssertExpectations(t)
}

func TestHandleCreateSession_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing job title",
			body: map[string]interface{}{
				"candidate_id": "cand-1",
				"turns":        []map[string]interface{}{{"role": "user", "text": "hi", "timestamp": 0}},
			},
		},
		{
			name: "no turns",
			body: map[string]interface{}{
				"candidate_id": "cand-1",
				"job_title":    "Backend Engineer",
				"turns":        []map[string]interface{}{},
			},
		},
		{
			name: "unknown role",
			body: map[string]interface{}{
				"candidate_id": "cand-1",
				"job_title":    "Backend Engineer",
				"turns":        []map[string]interface{}{{"role": "system", "text": "hi", "timestamp": 0}},
			},
		},
		{
			name: "negative timestamp",
			body: map[string]interface{}{
				"candidate_id": "cand-1",
				"job_title":    "Backend Engineer",
				"turns":        []map[string]interface{}{{"role": "user", "text": "hi", "timestamp": -1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, mockDB, _, _ := newTestServer()

			resp, err := server.app.Test(postJSON(t, "/api/v1/sessions", tt.body), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			mockDB.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleGetReport_FromCache(t *testing.T) {
	server, mockDB, _, mockCache := newTestServer()
	sessionID := uuid.New().String()

	mockCache.On("Get", mock.Anything, cache.SessionReportCacheKey(sessionID), mock.Anything).
		Run(func(args mock.Arguments) {
			report := args.Get(2).(*model.SpeechReport)
			report.ID = "report-1"
			report.SessionID = sessionID
			report.AveragePace = 130
		}).Return(nil)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/report", sessionID), nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report model.SpeechReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 130, report.AveragePace)

	mockDB.AssertNotCalled(t, "GetSpeechReportBySessionID", mock.Anything, mock.Anything)
}

func TestHandleGetReport_NotReady(t *testing.T) {
	server, mockDB, _, mockCache := newTestServer()
	sessionID := uuid.New().String()

	mockCache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(cache.ErrCacheMiss)
	mockDB.On("GetSpeechReportBySessionID", mock.Anything, sessionID).
		Return(nil, fmt.Errorf("report for session %s: %w", sessionID, storage.ErrNotFound))

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s/report", sessionID), nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGetReport_InvalidID(t *testing.T) {
	server, _, _, _ := newTestServer()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid/report", nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleReanalyze(t *testing.T) {
	server, mockDB, mockQueue, mockCache := newTestServer()
	sessionID := uuid.New().String()

	turns := []model.TurnRecord{
		{SessionID: sessionID, Role: "user", Text: "hello", Timestamp: 0},
	}

	mockCache.On("Get", mock.Anything, cache.SessionCacheKey(sessionID), mock.Anything).
		Return(cache.ErrCacheMiss)
	mockCache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockDB.On("GetSessionByID", mock.Anything, sessionID).
		Return(&model.Session{ID: sessionID}, nil)
	mockDB.On("GetTurnsBySessionID", mock.Anything, sessionID).Return(turns, nil)
	mockDB.On("CreateAnalysisJob", mock.Anything, mock.AnythingOfType("*model.AnalysisJob")).Return(nil)

	var published *queue.AnalysisTask
	mockQueue.On("PublishTask", mock.AnythingOfType("*queue.AnalysisTask")).
		Run(func(args mock.Arguments) {
			published = args.Get(0).(*queue.AnalysisTask)
		}).Return(nil)

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/reanalyze", sessionID), nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NotNil(t, published)
	assert.Equal(t, sessionID, published.SessionID)
	assert.True(t, published.Requeued)
	assert.Equal(t, model.TranscriptHash(turns), published.ContentHash)
}

func TestHandleReanalyze_SessionFromCache(t *testing.T) {
	server, mockDB, mockQueue, mockCache := newTestServer()
	sessionID := uuid.New().String()

	turns := []model.TurnRecord{
		{SessionID: sessionID, Role: "user", Text: "hello", Timestamp: 0},
	}

	mockCache.On("Get", mock.Anything, cache.SessionCacheKey(sessionID), mock.Anything).
		Run(func(args mock.Arguments) {
			session := args.Get(2).(*model.Session)
			session.ID = sessionID
		}).Return(nil)
	mockDB.On("GetTurnsBySessionID", mock.Anything, sessionID).Return(turns, nil)
	mockDB.On("CreateAnalysisJob", mock.Anything, mock.AnythingOfType("*model.AnalysisJob")).Return(nil)
	mockQueue.On("PublishTask", mock.AnythingOfType("*queue.AnalysisTask")).Return(nil)

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/reanalyze", sessionID), nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	mockDB.AssertNotCalled(t, "GetSessionByID", mock.Anything, mock.Anything)
}

func TestHandleReanalyze_SessionNotFound(t *testing.T) {
	server, mockDB, _, mockCache := newTestServer()
	sessionID := uuid.New().String()

	mockCache.On("Get", mock.Anything, cache.SessionCacheKey(sessionID), mock.Anything).
		Return(cache.ErrCacheMiss)
	mockDB.On("GetSessionByID", mock.Anything, sessionID).
		Return(nil, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound))

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/reanalyze", sessionID), nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGetJob(t *testing.T) {
	server, mockDB, _, _ := newTestServer()
	jobID := uuid.New().String()

	mockDB.On("GetAnalysisJobByID", mock.Anything, jobID).
		Return(&model.AnalysisJob{ID: jobID, Status: model.JobStatusInProgress}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var job model.AnalysisJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, model.JobStatusInProgress, job.Status)
}

func TestHandleHealth(t *testing.T) {
	server, _, _, _ := newTestServer()

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestHandleCreateSession_RateLimited(t *testing.T) {
	mockDB := new(MockStorage)
	mockQueue := new(MockQueue)
	mockCache := new(MockCache)
	// One enqueue per minute: the second request in quick succession is
	// rejected before touching storage.
	server := NewServer(mockDB, mockQueue, mockCache, 1)

	mockDB.On("CreateSession", mock.Anything, mock.Anything).Return(nil)
	mockCache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockDB.On("CreateTurns", mock.Anything, mock.Anything).Return(nil)
	mockDB.On("CreateAnalysisJob", mock.Anything, mock.Anything).Return(nil)
	mockQueue.On("PublishTask", mock.Anything).Return(nil)

	body := map[string]interface{}{
		"candidate_id": "cand-1",
		"job_title":    "Backend Engineer",
		"turns":        []map[string]interface{}{{"role": "user", "text": "hi", "timestamp": 0}},
	}

	resp, err := server.app.Test(postJSON(t, "/api/v1/sessions", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = server.app.Test(postJSON(t, "/api/v1/sessions", body), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
