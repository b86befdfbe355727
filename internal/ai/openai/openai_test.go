package openai

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

func TestCompleteSendsChatRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"  Markets rally \n"}}]}`))
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL+"/", time.Second)
	out, err := c.Complete(context.Background(), ai.Request{Model: "gpt-4o-mini", System: "be exact", Prompt: "headline?"})
	require.NoError(t, err)
	assert.Equal(t, "Markets rally", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, float64(0), got["temperature"])
	assert.Equal(t, float64(defaultMaxTokens), got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestCompleteErrors(t *testing.T) {
	_, err := New("", "", 0).Complete(context.Background(), ai.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err = New("sk", srv.URL, time.Second).Complete(context.Background(), ai.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "openai status 429")
}
