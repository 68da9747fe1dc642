package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kestrelstream/broker/pkg/models"
)

func TestRouterRequiresAuthOnPlay(t *testing.T) {
	f := newTestFacade(t, true)
	f.cfg.APIKeys = []string{"secret-key-1"}
	router := NewRouter(f, f.cfg, f.logger, "")

	body, _ := json.Marshal(models.PlayRequest{Name: "Camera 1"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/play", bytes.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterPlayWithValidKey(t *testing.T) {
	f := newTestFacade(t, true)
	f.cfg.APIKeys = []string{"secret-key-1"}
	router := NewRouter(f, f.cfg, f.logger, "")

	body, _ := json.Marshal(models.PlayRequest{Name: "Camera 1"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/play", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-key-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterPlayWithNoConfiguredKeysDisablesAuth(t *testing.T) {
	f := newTestFacade(t, true)
	f.cfg.APIKeys = nil
	router := NewRouter(f, f.cfg, f.logger, "")

	body, _ := json.Marshal(models.PlayRequest{Name: "Camera 1"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/play", bytes.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterListStreamsIsUnauthenticated(t *testing.T) {
	f := newTestFacade(t, true)
	f.cfg.APIKeys = []string{"secret-key-1"}
	router := NewRouter(f, f.cfg, f.logger, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterHealthzAndMetrics(t *testing.T) {
	f := newTestFacade(t, true)
	router := NewRouter(f, f.cfg, f.logger, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func init() {
	gin.SetMode(gin.TestMode)
}
