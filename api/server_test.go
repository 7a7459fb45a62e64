package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"camrig/config"
)

func TestHealthReportsDiskFree(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Paths: config.PathsConfig{VideoSavePath: t.TempDir()},
	}
	s := NewServer(cfg, nil, nil, nil)
	r := gin.New()
	s.setupRoutes(r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	free, ok := body["disk_free_bytes"].(float64)
	if !ok {
		t.Fatalf("disk_free_bytes missing or wrong type: %v", body)
	}
	if free <= 0 {
		t.Errorf("disk_free_bytes = %v, want > 0", free)
	}
}
