package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// fakeOllamaModels serves the OpenAI-compatible model listing endpoint.
func fakeOllamaModels(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)

		type model struct {
			ID string `json:"id"`
		}
		list := struct {
			Object string  `json:"object"`
			Data   []model `json:"data"`
		}{Object: "list"}
		for _, name := range models {
			list.Data = append(list.Data, model{ID: name})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(list))
	}))
}

func newAIRouter(cfg config.AIConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAIHandler(cfg)
	r.GET("/api/v1/ai/status", h.GetBackendStatus)
	r.GET("/api/v1/ai/models", h.ListModels)
	return r
}

func TestListModelsReturnsPulledModels(t *testing.T) {
	server := fakeOllamaModels(t, "llama3", "mistral")
	defer server.Close()

	r := newAIRouter(config.AIConfig{
		OllamaBaseURL: server.URL + "/v1",
		OllamaTimeout: 5 * time.Second,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ai/models", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"llama3", "mistral"}, resp.Models)
}

func TestListModelsReportsUnavailableServer(t *testing.T) {
	server := fakeOllamaModels(t)
	server.Close()

	r := newAIRouter(config.AIConfig{
		OllamaBaseURL: server.URL + "/v1",
		OllamaTimeout: time.Second,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ai/models", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBackendStatusReportsAvailability(t *testing.T) {
	server := fakeOllamaModels(t, "llama3")
	defer server.Close()

	r := newAIRouter(config.AIConfig{
		OllamaBaseURL:   server.URL + "/v1",
		OllamaTimeout:   5 * time.Second,
		AnthropicAPIKey: "sk-test",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ai/status", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ollama struct {
			BaseURL   string `json:"base_url"`
			Available bool   `json:"available"`
		} `json:"ollama"`
		OpenAI struct {
			Configured bool `json:"configured"`
		} `json:"openai"`
		Anthropic struct {
			Configured bool `json:"configured"`
		} `json:"anthropic"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ollama.Available)
	assert.Equal(t, server.URL+"/v1", resp.Ollama.BaseURL)
	assert.False(t, resp.OpenAI.Configured)
	assert.True(t, resp.Anthropic.Configured)
}
