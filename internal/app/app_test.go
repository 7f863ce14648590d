package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/yield-monitor/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func names[T interface{ Name() string }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name())
	}
	return out
}

func TestSourcesAllByDefault(t *testing.T) {
	srcs, rx := Sources(config.Config{}, nil, testLogger())
	assert.Equal(t, []string{"pendle", "spectra", "exponent", "ratex"}, names(srcs))
	require.NotNil(t, rx)
}

func TestSourcesFiltered(t *testing.T) {
	cfg := config.Config{EnabledSources: []string{"pendle"}}
	srcs, rx := Sources(cfg, nil, testLogger())
	assert.Equal(t, []string{"pendle"}, names(srcs))
	assert.NotNil(t, rx)
}

func TestNewRequiresDatabaseURL(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, testLogger())
	assert.Error(t, err)
}

func TestOpenDedupDisabledWithoutURL(t *testing.T) {
	assert.Nil(t, openDedup(context.Background(), config.Config{}, testLogger()))
}
