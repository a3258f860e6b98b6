package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, state, resultJSON, failMsg string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case createTaskPath:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "test-model", payload["model"])
			json.NewEncoder(w).Encode(map[string]any{
				"code": 200,
				"data": map[string]any{"taskId": "task-1"},
			})
		case taskStatusPath:
			assert.Equal(t, "task-1", r.URL.Query().Get("taskId"))
			json.NewEncoder(w).Encode(map[string]any{
				"code": 200,
				"data": map[string]any{
					"state":      state,
					"resultJson": resultJSON,
					"failMsg":    failMsg,
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_Generate(t *testing.T) {
	srv := newTestServer(t, "success", `{"resultUrls":["https://cdn.example.com/1.png","https://cdn.example.com/2.png"]}`, "")
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", 10*time.Second)
	urls, err := client.Generate(context.Background(), "https://s3/src.png", "studio light", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/1.png", "https://cdn.example.com/2.png"}, urls)
}

func TestClient_Generate_TaskFailed(t *testing.T) {
	srv := newTestServer(t, "fail", "", "nsfw content")
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", 10*time.Second)
	_, err := client.Generate(context.Background(), "https://s3/src.png", "studio light", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskFailed)
	assert.Contains(t, err.Error(), "nsfw content")
}

func TestClient_Generate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "test-model", 10*time.Second)
	_, err := client.Generate(context.Background(), "https://s3/src.png", "studio light", 1)
	assert.Error(t, err)
}
