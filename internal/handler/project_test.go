package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
)

const testJWTSecret = "test-secret"

func testApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := service.NewProjectStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { asynqClient.Close() })

	pipeline := service.NewPipelineService(store, asynqClient, nil, config.RenderConfig{
		FPS:                   30,
		ChunkThresholdSeconds: 50,
		MaxChunkSeconds:       50,
	})

	validate := validator.New()
	projectHandler := NewProjectHandler(pipeline, validate)
	renderHandler := NewRenderHandler(pipeline)

	authMw := middleware.NewAuthMiddleware(testJWTSecret)
	token, err := authMw.GenerateToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	app := fiber.New()
	api := app.Group("/api", authMw.Authenticate())
	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Get("/:projectId/status", projectHandler.Status)
	projects.Post("/:projectId/cancel", projectHandler.Cancel)
	render := api.Group("/render")
	render.Get("/:jobId/status", renderHandler.Status)

	return app, token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
}

func TestCreateProjectRequiresAuth(t *testing.T) {
	app, _ := testApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/projects/", "", map[string]interface{}{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateProjectValidatesBody(t *testing.T) {
	app, token := testApp(t)

	// No scenes at all.
	resp := doJSON(t, app, http.MethodPost, "/api/projects/", token, map[string]interface{}{
		"scenes": []interface{}{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty storyboard, got %d", resp.StatusCode)
	}

	// Unsupported aspect ratio.
	resp = doJSON(t, app, http.MethodPost, "/api/projects/", token, map[string]interface{}{
		"aspectRatio": "4:3",
		"scenes": []map[string]interface{}{
			{"sceneType": "image", "visualDirection": "a fox", "durationSeconds": 5},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad aspect ratio, got %d", resp.StatusCode)
	}
}

func TestCreateProjectAndFetchStatus(t *testing.T) {
	app, token := testApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/projects/", token, map[string]interface{}{
		"aspectRatio": "9:16",
		"scenes": []map[string]interface{}{
			{"sceneType": "image", "visualDirection": "a lighthouse", "narration": "far away", "durationSeconds": 10},
			{"sceneType": "video", "visualDirection": "waves", "durationSeconds": 15},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created model.CreateProjectResponse
	decodeBody(t, resp, &created)
	if created.ProjectID == "" {
		t.Fatal("missing project ID")
	}
	if created.Status != model.ProjectStatusDraft {
		t.Errorf("expected draft, got %s", created.Status)
	}

	resp = doJSON(t, app, http.MethodGet, "/api/projects/"+created.ProjectID+"/status", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status model.ProjectStatusResponse
	decodeBody(t, resp, &status)
	if len(status.Scenes) != 2 {
		t.Errorf("expected 2 scenes, got %d", len(status.Scenes))
	}
}

func TestStatusUnknownProjectReturns404(t *testing.T) {
	app, token := testApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/projects/nope/status", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRenderStatusUnknownJobReturns404(t *testing.T) {
	app, token := testApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/render/nope/status", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
