package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestResilientExplainer_MemoryCacheHit(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		io.WriteString(w, modelResponse(validModelJSON))
	}))
	defer server.Close()

	explainer, err := NewResilientExplainer(newTestLogger(), newTestClient(server.URL), nil, 8)
	require.NoError(t, err)

	ctx := context.Background()
	req := testExplanationRequest()

	first, err := explainer.GenerateExplanation(ctx, req)
	require.NoError(t, err)
	second, err := explainer.GenerateExplanation(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "second request should come from the memory tier")
}

func TestResilientExplainer_DistinctRequestsMiss(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		io.WriteString(w, modelResponse(validModelJSON))
	}))
	defer server.Close()

	explainer, err := NewResilientExplainer(newTestLogger(), newTestClient(server.URL), nil, 8)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = explainer.GenerateExplanation(ctx, testExplanationRequest())
	require.NoError(t, err)

	other := testExplanationRequest()
	other.Drug = "WARFARIN"
	_, err = explainer.GenerateExplanation(ctx, other)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestResilientExplainer_BreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	explainer, err := NewResilientExplainer(newTestLogger(), newTestClient(server.URL), nil, 8)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := explainer.GenerateExplanation(ctx, testExplanationRequest())
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, explainer.BreakerState())

	_, err = explainer.GenerateExplanation(ctx, testExplanationRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestResilientExplainer_DefaultMemorySize(t *testing.T) {
	explainer, err := NewResilientExplainer(newTestLogger(), newTestClient("http://localhost:1"), nil, 0)
	require.NoError(t, err)
	assert.NotNil(t, explainer)
}
