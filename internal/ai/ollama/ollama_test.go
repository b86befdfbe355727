package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiliankoe/royale/internal/ai"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"Solar eclipse\n"}}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, time.Second).Complete(context.Background(), ai.Request{Model: "llama3", Prompt: "topic?", MaxTokens: 32})
	require.NoError(t, err)
	assert.Equal(t, "Solar eclipse", out)
	assert.Equal(t, false, got["stream"])
	assert.Len(t, got["messages"], 1)
	assert.Equal(t, float64(32), got["options"].(map[string]any)["num_predict"])
}

func TestCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := New(srv.URL, time.Second).Complete(context.Background(), ai.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "ollama status 502")
}
