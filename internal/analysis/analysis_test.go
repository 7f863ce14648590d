package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/yield-monitor/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	testPool  = market.Pool{ID: "p1", Platform: market.Pendle, ChainID: 42161, Name: "PT-weETH-26JUN2025", UnderlyingAsset: "weETH"}
	testAlert = market.Alert{ID: "a1", PoolID: "p1", Kind: market.ImpliedSpike, PreviousValue: 0.08, CurrentValue: 0.06, ChangePercent: -25}
)

func TestAnalyze(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Emissions were cut."}}],
			"citations": ["https://x.com/post/1"]
		}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, APIKey: "key", Language: "Russian"}, testLogger())
	res, err := a.Analyze(context.Background(), testAlert, testPool)
	require.NoError(t, err)
	assert.Equal(t, "Emissions were cut.", res.Text)
	assert.Equal(t, []string{"https://x.com/post/1"}, res.Sources)

	assert.Equal(t, "sonar", got.Model)
	assert.Equal(t, "week", got.SearchRecencyFilter)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "Answer in Russian")
	assert.Contains(t, got.Messages[1].Content, "Asset: weETH")
	assert.Contains(t, got.Messages[1].Content, "Network: Arbitrum")
	assert.Contains(t, got.Messages[1].Content, "Event: Drop Implied APY (YT)")
	assert.Contains(t, got.Messages[1].Content, "Previous value: 8.00%")
	assert.Contains(t, got.Messages[1].Content, "Change: -25.00%")
	assert.Contains(t, got.Messages[1].Content, "yield drop")
}

func TestAnalyzeEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL, APIKey: "key"}, testLogger()).Analyze(context.Background(), testAlert, testPool)
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res.Text)
	assert.Equal(t, []string{}, res.Sources)
}

func TestAnalyzeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "key"}, testLogger()).Analyze(context.Background(), testAlert, testPool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAnalyzeNotConfigured(t *testing.T) {
	_, err := New(Config{}, testLogger()).Analyze(context.Background(), testAlert, testPool)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
