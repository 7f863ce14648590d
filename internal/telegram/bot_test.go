package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// fakeAPI records sendMessage calls and serves a fixed getUpdates batch once.
type fakeAPI struct {
	mu      sync.Mutex
	sent    []sentMessage
	updates string
	served  bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var m sentMessage
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			f.mu.Lock()
			f.sent = append(f.sent, m)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			f.mu.Lock()
			first := !f.served
			f.served = true
			f.mu.Unlock()
			if first {
				_, _ = w.Write([]byte(f.updates))
				return
			}
			// Stand in for the long-poll wait.
			time.Sleep(20 * time.Millisecond)
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeDashboard struct {
	health []store.PlatformHealth
	alerts []market.Alert
	err    error
}

func (f fakeDashboard) PlatformHealth(context.Context) ([]store.PlatformHealth, error) {
	return f.health, f.err
}

func (f fakeDashboard) ListAlerts(context.Context, store.AlertFilter) ([]market.Alert, error) {
	return f.alerts, f.err
}

var testPool = &market.Pool{
	Platform:      market.Pendle,
	ChainID:       1,
	MarketAddress: "0xabc",
	Name:          "PT-sUSDe-25SEP2025",
}

func TestNotifyAlert(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	b := newBot(srv.URL, "TOKEN", 42, nil, testLogger())
	err := b.NotifyAlert(context.Background(), market.Alert{
		Kind:          market.ImpliedSpike,
		PreviousValue: 0.10,
		CurrentValue:  0.08,
		ChangePercent: -20,
		Pool:          testPool,
	})
	require.NoError(t, err)

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Equal(t, "HTML", sent[0].ParseMode)
	assert.Contains(t, sent[0].Text, "Drop Implied APY (YT)")
	assert.Contains(t, sent[0].Text, "Previous: 10.00%")
	assert.Contains(t, sent[0].Text, "Change:   -20.00%")
	assert.Contains(t, sent[0].Text, "https://app.pendle.finance/trade/markets/0xabc?chain=ethereum")
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := newBot(srv.URL, "TOKEN", 1, nil, testLogger()).SendMessage(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatAlertUnderlyingFall(t *testing.T) {
	msg := FormatAlert(market.Alert{
		Kind:          market.UnderlyingSpike,
		PreviousValue: 0.10,
		CurrentValue:  0.05,
		ChangePercent: 50,
		Pool:          testPool,
	})
	assert.True(t, strings.HasPrefix(msg, "📉 <b>Drop Underlying APY</b>"), msg)
	assert.Contains(t, msg, "Change:   +50.00%")
}

func TestFormatAlertDivergence(t *testing.T) {
	msg := FormatAlert(market.Alert{
		Kind:          market.YieldDivergence,
		PreviousValue: 0.05,
		CurrentValue:  0.08,
		ChangePercent: 60,
		Pool:          &market.Pool{Platform: market.Spectra, ChainID: 8453, Name: "PT <USDC>"},
	})
	assert.Contains(t, msg, "Underlying APY above Implied APY")
	assert.Contains(t, msg, "Implied:    5.00%")
	assert.Contains(t, msg, "Underlying: 8.00%")
	assert.Contains(t, msg, "PT &lt;USDC&gt;")
	assert.Contains(t, msg, "Spectra · Base")
	assert.Contains(t, msg, "network=base")
}

func TestRunAnswersCommands(t *testing.T) {
	api := &fakeAPI{updates: `{"ok":true,"result":[
		{"update_id": 7, "message": {"chat": {"id": 9}, "text": "/status"}},
		{"update_id": 8, "message": {"chat": {"id": 9}, "text": "/alerts@yield_bot"}},
		{"update_id": 9, "message": {"chat": {"id": 9}, "text": "hello"}}
	]}`}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	last := time.Now().Add(-time.Hour)
	data := fakeDashboard{
		health: []store.PlatformHealth{
			{Platform: market.Pendle, PoolCount: 12, LastUpdate: &last},
			{Platform: market.RateX},
		},
		alerts: []market.Alert{{Kind: market.ImpliedSpike, ChangePercent: 12.5, Pool: testPool}},
	}
	b := newBot(srv.URL, "TOKEN", 1, data, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.Eventually(t, func() bool { return len(api.messages()) == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	sent := api.messages()
	assert.Contains(t, sent[0].Text, "🟢 Pendle: 12 pools")
	assert.Contains(t, sent[0].Text, "🔴 RateX: 0 pools, updated never")
	assert.Contains(t, sent[1].Text, "Rise Implied APY (YT) +12.50%")
	assert.Contains(t, sent[2].Text, "Unknown command")
	for _, m := range sent {
		assert.Equal(t, int64(9), m.ChatID)
	}
}

func TestAlertsTextEmptyAndError(t *testing.T) {
	b := newBot("http://unused", "T", 1, fakeDashboard{}, testLogger())
	assert.Equal(t, "✅ No new alerts.", b.alertsText(context.Background()))

	b = newBot("http://unused", "T", 1, fakeDashboard{err: errors.New("db down")}, testLogger())
	assert.Equal(t, "Error fetching alerts.", b.alertsText(context.Background()))
	assert.Equal(t, "Error fetching platform status.", b.statusText(context.Background()))
}
