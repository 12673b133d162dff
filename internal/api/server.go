package api

import (
	"fmt"

	"github.com/basefi-lab/dca-executor/internal/api/middleware"
	"github.com/basefi-lab/dca-executor/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type APIServer struct {
	app      *fiber.App
	db       *gorm.DB
	plans    services.PlanService
	executor services.ExecutorService
	log      *logrus.Logger
}

func NewAPIServer(db *gorm.DB, plans services.PlanService, executor services.ExecutorService, authSecret string, log *logrus.Logger) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Add middleware
	app.Use(cors.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &APIServer{
		app:      app,
		db:       db,
		plans:    plans,
		executor: executor,
		log:      log,
	}
	server.setupRoutes(authSecret)
	return server
}

func (s *APIServer) setupRoutes(authSecret string) {
	s.app.Get("/api/health", s.handleHealth)

	// Read-only plan state
	s.app.Get("/api/plan/user/:wallet", s.handleGetUserPlans)
	s.app.Get("/api/plan/:plan_hash/executions", s.handleListExecutions)

	// Mutating routes require the operator token when auth is configured
	auth := middleware.AuthMiddleware(middleware.AuthConfig{Secret: authSecret})
	s.app.Post("/api/plan/:plan_hash/execute", auth, s.handleExecutePlan)
	s.app.Post("/api/plan", auth, s.handleCreatePlan)
	s.app.Delete("/api/plan", auth, s.handleDeletePlan)
	s.app.Patch("/api/plan/approval", auth, s.handleUpdateApprovalAmount)
	s.app.Post("/api/token", auth, s.handleCreateToken)
}

func (s *APIServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Start begins listening on the given port, blocking until shutdown.
func (s *APIServer) Start(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying Fiber app for tests.
func (s *APIServer) App() *fiber.App {
	return s.app
}
