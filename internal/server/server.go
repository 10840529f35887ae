package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/config"
	"github.com/meetingwhisperer/server/internal/integrations"
	"github.com/meetingwhisperer/server/internal/pipeline"
	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/sink"
)

// Server exposes the pipeline over HTTP and websocket.
type Server struct {
	app      *fiber.App
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	jira     *integrations.Jira
	webhooks *integrations.Webhooks
	validate *validator.Validate
	log      *logrus.Logger

	mu      sync.Mutex
	reports map[string]pipeline.FinalReport
}

func New(cfg *config.Config, p *pipeline.Pipeline, jira *integrations.Jira, webhooks *integrations.Webhooks, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             64 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(logger.New())

	s := &Server{
		app:      app,
		pipeline: p,
		cfg:      cfg,
		jira:     jira,
		webhooks: webhooks,
		validate: validator.New(),
		log:      log,
		reports:  make(map[string]pipeline.FinalReport),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")
	api.Get("/health", s.handleAPIHealth)
	api.Get("/sessions", s.handleListSessions)
	api.Post("/transcribe-file", s.handleTranscribeFile)

	meeting := api.Group("/meeting/:id")
	meeting.Post("/end", s.handleEnd)
	meeting.Post("/ask", s.handleAsk)
	meeting.Post("/create-jira-tasks", s.handleCreateJiraTasks)
	meeting.Post("/post-summary", s.handlePostSummary)

	s.registerWebsocket()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"status": "error", "message": message})
}

func (s *Server) handleAPIHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"capabilities": fiber.Map{
			"transcription": s.cfg.Transcription.Provider,
			"oracle":        s.cfg.Oracle.Provider,
			"redis":         s.cfg.Redis.Enabled,
			"jira":          s.jira.Configured(),
			"teams":         s.webhooks.TeamsConfigured(),
			"slack":         s.webhooks.SlackConfigured(),
		},
		"active_sessions": len(s.pipeline.List()),
	})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions := s.pipeline.List()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleEnd(c *fiber.Ctx) error {
	id := c.Params("id")
	report, err := s.pipeline.End(c.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			return errorJSON(c, fiber.StatusNotFound, "meeting not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	s.rememberReport(report)
	return c.JSON(report)
}

func (s *Server) rememberReport(report pipeline.FinalReport) {
	s.mu.Lock()
	s.reports[report.SessionID] = report
	s.mu.Unlock()
}

func (s *Server) recallReport(id string) (pipeline.FinalReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	return report, ok
}

type askRequest struct {
	Question string `json:"question" validate:"required,min=2"`
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "question is required")
	}

	answer, err := s.pipeline.Ask(c.Context(), c.Params("id"), req.Question)
	if err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			return errorJSON(c, fiber.StatusNotFound, "meeting not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(answer)
}

func (s *Server) handleCreateJiraTasks(c *fiber.Ctx) error {
	if !s.jira.Configured() {
		return errorJSON(c, fiber.StatusBadRequest, "jira integration is not configured")
	}
	id := c.Params("id")

	var items []session.ActionItem
	if snap, err := s.pipeline.Snapshot(id); err == nil {
		items = snap.ActionItems
	} else if report, ok := s.recallReport(id); ok {
		items = report.ActionItems
	} else {
		return errorJSON(c, fiber.StatusNotFound, "meeting not found")
	}
	if len(items) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "meeting has no action items")
	}

	created, err := s.jira.CreateIssues(c.Context(), id, items)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"created": created,
		"count":   len(created),
	})
}

type postSummaryRequest struct {
	Platform string `json:"platform" validate:"required,oneof=teams slack"`
}

func (s *Server) handlePostSummary(c *fiber.Ctx) error {
	var req postSummaryRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "platform must be teams or slack")
	}

	id := c.Params("id")
	report, ok := s.recallReport(id)
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no final summary for this meeting; end it first")
	}

	if err := s.webhooks.PostSummary(c.Context(), req.Platform, report); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok", "platform": req.Platform})
}

func (s *Server) handleTranscribeFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "file upload is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "could not open upload")
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "could not read upload")
	}

	if c.Query("stream") == "true" {
		return s.streamFileEvents(c, fileHeader.Filename, audio)
	}

	report, err := s.pipeline.ProcessFile(c.Context(), fileHeader.Filename, audio, nil)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	s.rememberReport(report)
	return c.JSON(report)
}

// streamFileEvents replays the file through the pipeline while writing each
// event as one NDJSON line, so clients can render progress live.
func (s *Server) streamFileEvents(c *fiber.Ctx, filename string, audio []byte) error {
	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		enc := json.NewEncoder(w)
		out := sink.Func(func(ev sink.Event) {
			if err := enc.Encode(ev); err != nil {
				return
			}
			w.Flush()
		})

		report, err := s.pipeline.ProcessFile(context.Background(), filename, audio, out)
		if err != nil {
			enc.Encode(sink.Error(err.Error()))
			w.Flush()
			return
		}
		s.rememberReport(report)
	})
	return nil
}

// Addr formats the listen address from config.
func Addr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}
