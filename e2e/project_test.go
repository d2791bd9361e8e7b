package e2e

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func validCreateProjectBody() string {
	return `{
		"aspectRatio": "16:9",
		"scenes": [
			{"sceneType": "image", "visualDirection": "a lighthouse at dusk", "narration": "far from shore", "durationSeconds": 20},
			{"sceneType": "video", "visualDirection": "waves crashing on rocks", "durationSeconds": 25},
			{"sceneType": "image", "visualDirection": "a gull overhead", "durationSeconds": 20}
		]
	}`
}

// createProject creates a project and returns its ID.
func createProject(t *testing.T, ta *testApp) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/", validCreateProjectBody())
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	result := parseJSON(t, resp)
	id, _ := result["projectId"].(string)
	if id == "" {
		t.Fatal("expected 'projectId' in response")
	}
	return id
}

func TestProjectCreate_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/", validCreateProjectBody())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusCreated)

	result := parseJSON(t, resp)
	if result["projectId"] == nil || result["projectId"] == "" {
		t.Error("expected 'projectId' in response")
	}
	if result["status"] != "draft" {
		t.Errorf("expected status 'draft', got %v", result["status"])
	}
}

func TestProjectCreate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/projects/", validCreateProjectBody(), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestProjectCreate_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	// No scenes
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/", `{"scenes": []}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	// Unsupported aspect ratio
	body := `{"aspectRatio": "4:3", "scenes": [{"sceneType": "image", "visualDirection": "a fox", "durationSeconds": 5}]}`
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestProjectGenerate_Success(t *testing.T) {
	ta := setupApp(t)
	projectID := createProject(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/generate", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "generating" {
		t.Errorf("expected status 'generating', got %v", result["status"])
	}
}

func TestProjectGenerate_AlreadyGenerating(t *testing.T) {
	ta := setupApp(t)
	projectID := createProject(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/generate", "")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/generate", "")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestProjectGenerate_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+uuid.New().String()+"/generate", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestProjectStatus_Success(t *testing.T) {
	ta := setupApp(t)
	projectID := createProject(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/projects/"+projectID+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["projectId"] != projectID {
		t.Errorf("expected projectId %s, got %v", projectID, result["projectId"])
	}
	scenes, ok := result["scenes"].([]interface{})
	if !ok || len(scenes) != 3 {
		t.Errorf("expected 3 scenes in status, got %v", result["scenes"])
	}
}

func TestProjectCancel_Success(t *testing.T) {
	ta := setupApp(t)
	projectID := createProject(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/generate", "")
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/cancel", "")
	if err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["success"] != true {
		t.Errorf("expected success true, got %v", result["success"])
	}
	if result["status"] != "canceling" {
		t.Errorf("expected status 'canceling', got %v", result["status"])
	}
}

func TestProjectCancel_NotGenerating(t *testing.T) {
	ta := setupApp(t)
	projectID := createProject(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+projectID+"/cancel", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
}
