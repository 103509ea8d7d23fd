package api

import (
	"context"
	"time"

	"cadence/internal/queue"
	"cadence/pkg/cache"
	"cadence/pkg/model"
	"cadence/pkg/resilience"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Storage is the slice of the database the API needs.
type Storage interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSessionByID(ctx context.Context, id string) (*model.Session, error)
	CreateTurns(ctx context.Context, turns []model.TurnRecord) error
	GetTurnsBySessionID(ctx context.Context, sessionID string) ([]model.TurnRecord, error)
	CreateAnalysisJob(ctx context.Context, job *model.AnalysisJob) error
	GetAnalysisJobByID(ctx context.Context, id string) (*model.AnalysisJob, error)
	GetSpeechReportBySessionID(ctx context.Context, sessionID string) (*model.SpeechReport, error)
}

// QueuePublisher enqueues analysis tasks.
type QueuePublisher interface {
	PublishTask(task *queue.AnalysisTask) error
}

type Server struct {
	app      *fiber.App
	db       Storage
	q        QueuePublisher
	cache    cache.Cache
	validate *validator.Validate
	limiter  *resilience.RateLimiter
}

// NewServer wires the HTTP surface: transcript ingestion, report retrieval
// and re-analysis. enqueueRatePerMinute caps how fast this instance will
// push analysis jobs onto the queue.
func NewServer(db Storage, q QueuePublisher, reportCache cache.Cache, enqueueRatePerMinute int) *Server {
	if enqueueRatePerMinute <= 0 {
		enqueueRatePerMinute = 60
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "cadence",
		}),
		db:       db,
		q:        q,
		cache:    reportCache,
		validate: validator.New(),
		limiter:  resilience.NewRateLimiter(enqueueRatePerMinute, time.Minute/time.Duration(enqueueRatePerMinute)),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New())

	s.app.Get("/health", s.handleHealth)

	apiV1 := s.app.Group("/api/v1")
	apiV1.Post("/sessions", s.handleCreateSession)
	apiV1.Get("/sessions/:id/report", s.handleGetReport)
	apiV1.Post("/sessions/:id/reanalyze", s.handleReanalyze)
	apiV1.Get("/jobs/:id", s.handleGetJob)
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
