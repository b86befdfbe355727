package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiliankoe/royale/internal/ai"
)

func newTestLocal(p ai.Provider) *Local {
	return NewLocal(Config{Timeout: time.Second, BaseDelay: time.Millisecond, Provider: p, Model: "test-model"})
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"bitcoin":{"usd":64000}}`))
	}))
	defer srv.Close()

	page, err := newTestLocal(nil).FetchAgreedWebpage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"bitcoin":{"usd":64000}}`, page)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestLocal(nil).FetchAgreedWebpage(context.Background(), srv.URL)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadGateway, he.StatusCode)
	assert.Equal(t, int32(DefaultAttempts), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestLocal(nil).FetchAgreedWebpage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	l := NewLocal(Config{MaxBody: 1000})
	page, err := l.FetchAgreedWebpage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page, 1000)
}

type stubProvider struct {
	got ai.Request
	out string
	err error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, req ai.Request) (string, error) {
	s.got = req
	return s.out, s.err
}

func TestPromptResult(t *testing.T) {
	p := &stubProvider{out: "Markets rally"}
	out, err := newTestLocal(p).FetchAgreedPromptResult(context.Background(), "pick a headline", "one headline only")
	require.NoError(t, err)
	assert.Equal(t, "Markets rally", out)
	assert.Equal(t, "test-model", p.got.Model)
	assert.Equal(t, "pick a headline", p.got.Prompt)
	assert.Contains(t, p.got.System, "one headline only")
	assert.Zero(t, p.got.Temperature)

	p.err = errors.New("boom")
	_, err = newTestLocal(p).FetchAgreedPromptResult(context.Background(), "x", "")
	assert.ErrorContains(t, err, "stub")

	_, err = newTestLocal(nil).FetchAgreedPromptResult(context.Background(), "x", "")
	assert.Error(t, err)
}
