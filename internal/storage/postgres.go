package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"

	"cadence/pkg/logger"
	"cadence/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStorage struct {
	pool *pgxpool.Pool
}

// New PostgreSQL storage instance
func NewPostgresStorage(databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	// Run migrations
	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migrations completed successfully")

	return &PostgresStorage{pool: pool}, nil
}

// Executing database migrations
func runMigrations(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply")
	} else {
		logger.Info("Migrations applied successfully")
	}

	return nil
}

// Drops all tables and re-runs migrations (for development)
func ResetMigrations(databaseURL string) error {
	logger.Warn("Resetting database - this will drop all data!")

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	logger.Info("Database dropped successfully")

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations after reset: %w", err)
	}

	logger.Info("Database reset and migrations applied successfully")
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	migrationsPath, err := filepath.Abs("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Create file URL from path (works on both Windows and Unix)
	var migrationsURL string
	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(migrationsPath),
		}
		migrationsURL = u.String()
	} else {
		migrationsURL = fmt.Sprintf("file://%s", migrationsPath)
	}

	logger.Info("Running migrations", zap.String("path", migrationsURL))

	db := stdlib.OpenDB(*parseConfig(databaseURL))

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// Parses database URL into pgx config
func parseConfig(databaseURL string) *pgx.ConnConfig {
	config, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal("Failed to parse database URL", zap.Error(err))
	}
	return config
}

// Closes the database connection pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// CreateSession inserts a new interview session
func (s *PostgresStorage) CreateSession(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, candidate_id, job_title, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.CandidateID,
		session.JobTitle,
		session.Meta,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByID retrieves a session by its ID
func (s *PostgresStorage) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
		SELECT id, candidate_id, job_title, meta, created_at, updated_at
		FROM sessions
		WHERE id = $1`

	var session model.Session
	row := s.pool.QueryRow(ctx, query, id)

	err := row.Scan(
		&session.ID,
		&session.CandidateID,
		&session.JobTitle,
		&session.Meta,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// CreateTurns inserts a session's transcript turns in one batch
func (s *PostgresStorage) CreateTurns(ctx context.Context, turns []model.TurnRecord) error {
	if len(turns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO session_turns (
			id, session_id, position, role, text, timestamp, emotion_features, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, turn := range turns {
		batch.Queue(query,
			turn.ID,
			turn.SessionID,
			turn.Position,
			turn.Role,
			turn.Text,
			turn.Timestamp,
			turn.EmotionFeatures,
			turn.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range turns {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to create turns: %w", err)
		}
	}

	return nil
}

// GetTurnsBySessionID retrieves a session's transcript in stored order
func (s *PostgresStorage) GetTurnsBySessionID(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	query := `
		SELECT id, session_id, position, role, text, timestamp, emotion_features, created_at
		FROM session_turns
		WHERE session_id = $1
		ORDER BY position ASC`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	defer rows.Close()

	var turns []model.TurnRecord
	for rows.Next() {
		var turn model.TurnRecord
		err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.Position,
			&turn.Role,
			&turn.Text,
			&turn.Timestamp,
			&turn.EmotionFeatures,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}

// CreateAnalysisJob inserts a new analysis job
func (s *PostgresStorage) CreateAnalysisJob(ctx context.Context, job *model.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			id, session_id, status, content_hash, attempts, error_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.SessionID,
		job.Status,
		job.ContentHash,
		job.Attempts,
		job.ErrorText,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create analysis job: %w", err)
	}

	return nil
}

// GetAnalysisJobByID retrieves an analysis job by its ID
func (s *PostgresStorage) GetAnalysisJobByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	query := `
		SELECT id, session_id, status, content_hash, attempts, error_text, created_at, updated_at
		FROM analysis_jobs
		WHERE id = $1`

	var job model.AnalysisJob
	row := s.pool.QueryRow(ctx, query, id)

	err := row.Scan(
		&job.ID,
		&job.SessionID,
		&job.Status,
		&job.ContentHash,
		&job.Attempts,
		&job.ErrorText,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("analysis job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}

	return &job, nil
}

// UpdateAnalysisJob updates a full analysis job
func (s *PostgresStorage) UpdateAnalysisJob(ctx context.Context, job *model.AnalysisJob) error {
	query := `
		UPDATE analysis_jobs
		SET session_id = $2, status = $3, content_hash = $4, attempts = $5,
		    error_text = $6, updated_at = $7
		WHERE id = $1`

	result, err := s.pool.Exec(ctx, query,
		job.ID,
		job.SessionID,
		job.Status,
		job.ContentHash,
		job.Attempts,
		job.ErrorText,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update analysis job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("analysis job %s: %w", job.ID, ErrNotFound)
	}

	return nil
}

// CreateSpeechReport inserts a finished delivery report
func (s *PostgresStorage) CreateSpeechReport(ctx context.Context, report *model.SpeechReport) error {
	query := `
		INSERT INTO speech_reports (
			id, session_id, job_id, content_hash, average_pace, pace_rating,
			total_fillers, mean_confidence, result, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		report.ID,
		report.SessionID,
		report.JobID,
		report.ContentHash,
		report.AveragePace,
		report.PaceRating,
		report.TotalFillers,
		report.MeanConfidence,
		report.Result,
		report.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create speech report: %w", err)
	}

	return nil
}

// GetSpeechReportBySessionID retrieves the latest report for a session
func (s *PostgresStorage) GetSpeechReportBySessionID(ctx context.Context, sessionID string) (*model.SpeechReport, error) {
	query := `
		SELECT id, session_id, job_id, content_hash, average_pace, pace_rating,
		       total_fillers, mean_confidence, result, created_at
		FROM speech_reports
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var report model.SpeechReport
	row := s.pool.QueryRow(ctx, query, sessionID)

	err := row.Scan(
		&report.ID,
		&report.SessionID,
		&report.JobID,
		&report.ContentHash,
		&report.AveragePace,
		&report.PaceRating,
		&report.TotalFillers,
		&report.MeanConfidence,
		&report.Result,
		&report.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("report for session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get speech report: %w", err)
	}

	return &report, nil
}

// GetSpeechReportByContentHash retrieves a report computed for an identical
// transcript, regardless of session
func (s *PostgresStorage) GetSpeechReportByContentHash(ctx context.Context, contentHash string) (*model.SpeechReport, error) {
	query := `
		SELECT id, session_id, job_id, content_hash, average_pace, pace_rating,
		       total_fillers, mean_confidence, result, created_at
		FROM speech_reports
		WHERE content_hash = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var report model.SpeechReport
	row := s.pool.QueryRow(ctx, query, contentHash)

	err := row.Scan(
		&report.ID,
		&report.SessionID,
		&report.JobID,
		&report.ContentHash,
		&report.AveragePace,
		&report.PaceRating,
		&report.TotalFillers,
		&report.MeanConfidence,
		&report.Result,
		&report.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("report for hash %s: %w", contentHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get speech report: %w", err)
	}

	return &report, nil
}
