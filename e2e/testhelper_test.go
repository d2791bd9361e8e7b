package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/service"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *service.ProjectStore
}

// setupApp creates a Fiber app identical to main.go, backed by an
// in-process Redis and with no external clients configured.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	renderCfg := config.RenderConfig{
		FPS:                   30,
		ChunkThresholdSeconds: 50,
		MaxChunkSeconds:       50,
		ChunkConcurrency:      2,
		ChunkRetries:          2,
	}

	// Services — storage nil so output URLs stay unsigned
	store := service.NewProjectStore(redisClient)
	pipeline := service.NewPipelineService(store, asynqClient, nil, renderCfg)

	// Handlers
	projectHandler := handler.NewProjectHandler(pipeline, validate)
	renderHandler := handler.NewRenderHandler(pipeline)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"replicate":  false,
				"fal":        false,
				"stability":  false,
				"elevenlabs": false,
				"suno":       false,
				"vision":     false,
				"r2":         false,
				"render":     false,
			},
		})
	})

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Post("/:projectId/generate", rateLimiter.GenerateLimit(10000), projectHandler.Generate)
	projects.Get("/:projectId/status", projectHandler.Status)
	projects.Post("/:projectId/cancel", projectHandler.Cancel)
	projects.Post("/:projectId/render", rateLimiter.RenderLimit(10000), renderHandler.Start)

	render := api.Group("/render")
	render.Get("/:jobId/status", renderHandler.Status)
	render.Post("/:jobId/cancel", renderHandler.Cancel)
	render.Get("/:jobId/output", renderHandler.Output)

	return &testApp{app: app, store: store}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.NewAuthMiddleware(testJWTSecret).GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
