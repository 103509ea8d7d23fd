package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cadence/internal/analytics"
	"cadence/internal/observability"
	"cadence/internal/queue"
	"cadence/pkg/cache"
	"cadence/pkg/logger"
	"cadence/pkg/model"
	"cadence/pkg/resilience"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage is the slice of the database the processor needs.
type Storage interface {
	GetAnalysisJobByID(ctx context.Context, id string) (*model.AnalysisJob, error)
	UpdateAnalysisJob(ctx context.Context, job *model.AnalysisJob) error
	GetTurnsBySessionID(ctx context.Context, sessionID string) ([]model.TurnRecord, error)
	CreateSpeechReport(ctx context.Context, report *model.SpeechReport) error
	GetSpeechReportByContentHash(ctx context.Context, contentHash string) (*model.SpeechReport, error)
}

// Archive stores immutable transcript and report copies.
type Archive interface {
	UploadJSON(ctx context.Context, key string, v interface{}) (string, error)
	TranscriptKey(sessionID string) string
	ReportKey(sessionID, jobID string) string
}

type Processor struct {
	db      Storage
	archive Archive
	cache   cache.Cache
	engine  *analytics.Engine
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewProcessor creates a new analysis processor
func NewProcessor(db Storage, archive Archive, reportCache cache.Cache) *Processor {
	return &Processor{
		db:      db,
		archive: archive,
		cache:   reportCache,
		engine:  analytics.NewEngine(),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(5, 30*time.Second),
	}
}

// ProcessTask runs the delivery analysis for one queued job
func (p *Processor) ProcessTask(taskData []byte) error {
	var task queue.AnalysisTask
	if err := json.Unmarshal(taskData, &task); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	logger.Info("Processing analysis task",
		zap.String("job_id", task.JobID),
		zap.String("session_id", task.SessionID))

	ctx := context.Background()

	job, err := p.db.GetAnalysisJobByID(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job from db: %w", err)
	}

	job.SetInProgress()
	if err := p.db.UpdateAnalysisJob(ctx, job); err != nil {
		logger.Error("Failed to update job status", zap.Error(err))
	}

	turns, err := p.db.GetTurnsBySessionID(ctx, job.SessionID)
	if err != nil {
		p.handleJobError(ctx, job, fmt.Sprintf("Failed to load transcript: %v", err))
		return err
	}

	contentHash := model.TranscriptHash(turns)

	// An unchanged transcript is already analyzed; the result is
	// deterministic, so the cached report is the report.
	var cached model.SpeechReport
	if err := p.cache.Get(ctx, cache.ReportCacheKey(contentHash), &cached); err == nil {
		observability.RecordCacheHit()
		logger.Info("Report served from cache",
			zap.String("job_id", job.ID),
			zap.String("content_hash", contentHash))

		p.cacheReport(ctx, &cached)
		p.completeJob(ctx, job)
		return nil
	}
	observability.RecordCacheMiss()

	// Redis may have evicted the entry; the database still remembers every
	// report for an identical transcript.
	if prior, err := p.db.GetSpeechReportByContentHash(ctx, contentHash); err == nil {
		logger.Info("Report reused from database",
			zap.String("job_id", job.ID),
			zap.String("content_hash", contentHash))

		p.cacheReport(ctx, prior)
		p.completeJob(ctx, job)
		return nil
	}

	started := time.Now()
	result, err := p.engine.Analyze(toConversationTurns(turns))
	if err != nil {
		// Structural violations are a contract breach by the ingester;
		// requeueing the same transcript cannot succeed, so the message
		// is consumed and only the job records the failure.
		p.handleJobError(ctx, job, fmt.Sprintf("Analysis rejected transcript: %v", err))
		return nil
	}
	observability.ObserveAnalysis(time.Since(started), len(turns))

	report, err := buildReport(job, contentHash, result)
	if err != nil {
		p.handleJobError(ctx, job, fmt.Sprintf("Failed to build report: %v", err))
		return err
	}

	if err := resilience.Retry(ctx, p.retry, func() error {
		return p.db.CreateSpeechReport(ctx, report)
	}); err != nil {
		p.handleJobError(ctx, job, fmt.Sprintf("Failed to save report: %v", err))
		return err
	}

	logger.Info("Report saved",
		zap.String("job_id", job.ID),
		zap.String("report_id", report.ID),
		zap.Int("average_pace", report.AveragePace),
		zap.Int("total_fillers", report.TotalFillers),
		zap.Int("data_points", len(result.TimeSeries)))

	p.cacheReport(ctx, report)

	// The report is in the database; missing archive copies are not fatal.
	p.archiveObject(ctx, p.archive.TranscriptKey(job.SessionID), turns)
	p.archiveObject(ctx, p.archive.ReportKey(report.SessionID, job.ID), report)

	p.completeJob(ctx, job)

	logger.Info("Task completed successfully",
		zap.String("job_id", job.ID))

	return nil
}

// buildReport turns an engine result into its persisted form
func buildReport(job *model.AnalysisJob, contentHash string, result *analytics.Result) (*model.SpeechReport, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	report := &model.SpeechReport{
		ID:           uuid.New().String(),
		SessionID:    job.SessionID,
		JobID:        job.ID,
		ContentHash:  contentHash,
		AveragePace:  result.AveragePace,
		PaceRating:   string(analytics.RatePace(result.AveragePace)),
		TotalFillers: result.TotalFillers,
		Result:       resultJSON,
		CreatedAt:    time.Now(),
	}

	// An empty time series means insufficient data, not zero confidence.
	if mean, ok := result.MeanConfidence(); ok {
		report.MeanConfidence = &mean
	}

	return report, nil
}

// toConversationTurns maps stored rows to the engine's input type
func toConversationTurns(turns []model.TurnRecord) []analytics.ConversationTurn {
	converted := make([]analytics.ConversationTurn, len(turns))
	for i, turn := range turns {
		converted[i] = analytics.ConversationTurn{
			Role:            analytics.Role(turn.Role),
			Text:            turn.Text,
			Timestamp:       turn.Timestamp,
			EmotionFeatures: analytics.EmotionPayload(turn.EmotionFeatures),
		}
	}
	return converted
}

// archiveObject uploads one object through the circuit breaker, so an
// unavailable archive stops costing a round trip per task.
func (p *Processor) archiveObject(ctx context.Context, key string, v interface{}) {
	err := p.breaker.Execute(func() error {
		_, uploadErr := p.archive.UploadJSON(ctx, key, v)
		return uploadErr
	})
	if err != nil {
		logger.Error("Failed to archive object",
			zap.String("key", key),
			zap.Error(err))
	}
}

// cacheReport stores the report under both its content hash and session keys
func (p *Processor) cacheReport(ctx context.Context, report *model.SpeechReport) {
	if err := p.cache.Set(ctx, cache.ReportCacheKey(report.ContentHash), report); err != nil {
		logger.Error("Failed to cache report by hash", zap.Error(err))
	}
	if err := p.cache.Set(ctx, cache.SessionReportCacheKey(report.SessionID), report); err != nil {
		logger.Error("Failed to cache report by session", zap.Error(err))
	}
}

// completeJob marks the job done
func (p *Processor) completeJob(ctx context.Context, job *model.AnalysisJob) {
	job.SetCompleted()
	if err := p.db.UpdateAnalysisJob(ctx, job); err != nil {
		logger.Error("Failed to update job status to done", zap.Error(err))
	}
	observability.RecordJob(string(model.JobStatusDone))
}

// handleJobError records a failed attempt on the job
func (p *Processor) handleJobError(ctx context.Context, job *model.AnalysisJob, errorMsg string) {
	logger.Error("Job processing error",
		zap.String("job_id", job.ID),
		zap.String("error", errorMsg))

	job.SetError(errorMsg)
	job.IncrementAttempts()

	if err := p.db.UpdateAnalysisJob(ctx, job); err != nil {
		logger.Error("Failed to update job error", zap.Error(err))
	}
	observability.RecordJob(string(model.JobStatusFailed))
}
