package server

import (
	"time"

	"adaptive-learning/internal/handler"
	"adaptive-learning/internal/metrics"
	"adaptive-learning/internal/middleware"
	"adaptive-learning/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the stub quiz API is assembled from.
type Dependencies struct {
	QuizService service.QuizService
	AuthService service.AuthService
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// NewApp builds the fiber application serving the quiz API under /api.
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           20 * time.Second,
		WriteTimeout:          20 * time.Second,
		IdleTimeout:           20 * time.Second,
		BodyLimit:             1 * 1024 * 1024,
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Header: middleware.RequestIDHeader}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Metrics(deps.Metrics))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		MaxAge:       300,
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	quizHandler := handler.NewQuizHandler(deps.QuizService)
	authHandler := handler.NewAuthHandler(deps.AuthService)
	validation := middleware.NewValidationMiddleware()

	apiGroup := app.Group("/api")
	apiGroup.Post("/login", authHandler.Login)

	quizGroup := apiGroup.Group("/quiz", middleware.Protected(deps.AuthService))
	quizGroup.Get("/get-quizzes", quizHandler.GetQuizzes)
	quizGroup.Get("/quiz/:quizId", quizHandler.GetQuiz)
	quizGroup.Post("/submit-quiz", validation.ValidateSubmitQuiz(), quizHandler.SubmitQuiz)
	quizGroup.Get("/feedback-status/:taskId", quizHandler.GetFeedbackStatus)
	quizGroup.Get("/user-results/:username", quizHandler.GetUserResults)
	quizGroup.Post("/clear-quiz-cache", quizHandler.ClearQuizCache)

	return app
}
