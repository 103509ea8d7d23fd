package api

import (
	"encoding/json"
	"errors"
	"time"

	"cadence/internal/queue"
	"cadence/internal/storage"
	"cadence/pkg/cache"
	"cadence/pkg/logger"
	"cadence/pkg/model"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type turnRequest struct {
	Role            string          `json:"role" validate:"required,oneof=user agent"`
	Text            string          `json:"text"`
	Timestamp       float64         `json:"timestamp" validate:"gte=0"`
	EmotionFeatures json.RawMessage `json:"emotion_features"`
}

type createSessionRequest struct {
	CandidateID string                 `json:"candidate_id" validate:"required"`
	JobTitle    string                 `json:"job_title" validate:"required"`
	Meta        map[string]interface{} `json:"meta"`
	Turns       []turnRequest          `json:"turns" validate:"required,min=1,dive"`
}

type enqueueResponse struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// handleCreateSession ingests a finished interview transcript and queues
// its delivery analysis.
// POST /api/v1/sessions
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "validation failed: "+err.Error())
	}

	if !s.limiter.Allow() {
		return respondError(c, fiber.StatusTooManyRequests, "analysis rate limit exceeded")
	}

	ctx := c.Context()
	now := time.Now()

	session := &model.Session{
		ID:          uuid.New().String(),
		CandidateID: req.CandidateID,
		JobTitle:    req.JobTitle,
		Meta:        model.JSONB(req.Meta),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateSession(ctx, session); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "failed to store session")
	}

	if err := s.cache.Set(ctx, cache.SessionCacheKey(session.ID), session); err != nil {
		logger.Error("Failed to cache session", zap.Error(err))
	}

	turns := make([]model.TurnRecord, len(req.Turns))
	for i, turn := range req.Turns {
		turns[i] = model.TurnRecord{
			ID:              uuid.New().String(),
			SessionID:       session.ID,
			Position:        i,
			Role:            turn.Role,
			Text:            turn.Text,
			Timestamp:       turn.Timestamp,
			EmotionFeatures: turn.EmotionFeatures,
			CreatedAt:       now,
		}
	}

	if err := s.db.CreateTurns(ctx, turns); err != nil {
		logger.Error("Failed to store turns",
			zap.Error(err),
			zap.String("session_id", session.ID))
		return respondError(c, fiber.StatusInternalServerError, "failed to store transcript")
	}

	job, err := s.enqueueAnalysis(c, session.ID, turns, false)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "failed to queue analysis")
	}

	logger.Info("Session ingested",
		zap.String("session_id", session.ID),
		zap.String("job_id", job.ID),
		zap.Int("turns", len(turns)))

	return c.Status(fiber.StatusCreated).JSON(enqueueResponse{
		SessionID: session.ID,
		JobID:     job.ID,
		Status:    string(job.Status),
	})
}

// handleGetReport returns the latest delivery report for a session,
// preferring the cache over the database.
// GET /api/v1/sessions/:id/report
func (s *Server) handleGetReport(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}

	ctx := c.Context()

	var cached model.SpeechReport
	if err := s.cache.Get(ctx, cache.SessionReportCacheKey(sessionID), &cached); err == nil {
		return c.Status(fiber.StatusOK).JSON(&cached)
	}

	report, err := s.db.GetSpeechReportBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return respondError(c, fiber.StatusNotFound, "report not ready")
		}
		logger.Error("Failed to load report",
			zap.Error(err),
			zap.String("session_id", sessionID))
		return respondError(c, fiber.StatusInternalServerError, "failed to load report")
	}

	if err := s.cache.Set(ctx, cache.SessionReportCacheKey(sessionID), report); err != nil {
		logger.Error("Failed to cache report", zap.Error(err))
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

// handleReanalyze queues a fresh analysis of an already-stored transcript.
// The engine is deterministic, so an unchanged transcript resolves from the
// report cache without recomputation.
// POST /api/v1/sessions/:id/reanalyze
func (s *Server) handleReanalyze(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}

	ctx := c.Context()

	var cachedSession model.Session
	if err := s.cache.Get(ctx, cache.SessionCacheKey(sessionID), &cachedSession); err != nil {
		session, err := s.db.GetSessionByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return respondError(c, fiber.StatusNotFound, "session not found")
			}
			logger.Error("Failed to load session", zap.Error(err))
			return respondError(c, fiber.StatusInternalServerError, "failed to load session")
		}
		if err := s.cache.Set(ctx, cache.SessionCacheKey(sessionID), session); err != nil {
			logger.Error("Failed to cache session", zap.Error(err))
		}
	}

	turns, err := s.db.GetTurnsBySessionID(ctx, sessionID)
	if err != nil {
		logger.Error("Failed to load turns", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "failed to load transcript")
	}

	if !s.limiter.Allow() {
		return respondError(c, fiber.StatusTooManyRequests, "analysis rate limit exceeded")
	}

	job, err := s.enqueueAnalysis(c, sessionID, turns, true)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "failed to queue analysis")
	}

	return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
		SessionID: sessionID,
		JobID:     job.ID,
		Status:    string(job.Status),
	})
}

// handleGetJob reports an analysis job's progress.
// GET /api/v1/jobs/:id
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if _, err := uuid.Parse(jobID); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid job ID format")
	}

	job, err := s.db.GetAnalysisJobByID(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return respondError(c, fiber.StatusNotFound, "job not found")
		}
		logger.Error("Failed to load job", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "failed to load job")
	}

	return c.Status(fiber.StatusOK).JSON(job)
}

// enqueueAnalysis records an analysis job and publishes it to the queue.
func (s *Server) enqueueAnalysis(c *fiber.Ctx, sessionID string, turns []model.TurnRecord, requeued bool) (*model.AnalysisJob, error) {
	now := time.Now()
	job := &model.AnalysisJob{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Status:      model.JobStatusQueued,
		ContentHash: model.TranscriptHash(turns),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateAnalysisJob(c.Context(), job); err != nil {
		logger.Error("Failed to create analysis job",
			zap.Error(err),
			zap.String("session_id", sessionID))
		return nil, err
	}

	task := &queue.AnalysisTask{
		JobID:       job.ID,
		SessionID:   sessionID,
		ContentHash: job.ContentHash,
		TurnCount:   len(turns),
		Requeued:    requeued,
		CreatedAt:   now,
	}

	if err := s.q.PublishTask(task); err != nil {
		logger.Error("Failed to publish analysis task",
			zap.Error(err),
			zap.String("job_id", job.ID))
		return nil, err
	}

	logger.Info("Analysis task queued",
		zap.String("job_id", job.ID),
		zap.String("session_id", sessionID))

	return job, nil
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
