package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/store"
)

const telegramAPI = "https://api.telegram.org"

// Dashboard is the read side the bot commands need. *store.Store implements it.
type Dashboard interface {
	PlatformHealth(ctx context.Context) ([]store.PlatformHealth, error)
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]market.Alert, error)
}

type Bot struct {
	client *resty.Client
	chatID int64
	data   Dashboard
	logger *slog.Logger
	offset int64
}

// NewBot creates a bot that posts alerts to chatID. data may be nil, in which
// case /status and /alerts are not answered.
func NewBot(token string, chatID int64, data Dashboard, logger *slog.Logger) *Bot {
	return newBot(telegramAPI, token, chatID, data, logger)
}

func newBot(apiURL, token string, chatID int64, data Dashboard, logger *slog.Logger) *Bot {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/") + "/bot" + token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(45 * time.Second)
	return &Bot{client: client, chatID: chatID, data: data, logger: logger}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage sends an HTML formatted message to a Telegram chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	var errResp apiResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetError(&errResp).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode(), errResp.Description)
	}
	return nil
}

// NotifyAlert posts an alert to the configured chat.
func (b *Bot) NotifyAlert(ctx context.Context, a market.Alert) error {
	return b.SendMessage(ctx, b.chatID, FormatAlert(a))
}

// FormatAlert renders an alert as a Telegram HTML message.
func FormatAlert(a market.Alert) string {
	icon := "📈"
	if a.Kind == market.YieldDivergence {
		icon = "⚠️"
	} else if a.Falling() {
		icon = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", icon, html.EscapeString(a.Label()))
	if a.Pool != nil {
		fmt.Fprintf(&b, "Pool: %s\n", html.EscapeString(a.Pool.Name))
		fmt.Fprintf(&b, "Platform: %s · %s\n", a.Pool.Platform.Label(), market.PlatformChainName(a.Pool.Platform, a.Pool.ChainID))
	}
	if a.Kind == market.YieldDivergence {
		fmt.Fprintf(&b, "Implied:    %s\n", market.FormatPercent(a.PreviousValue))
		fmt.Fprintf(&b, "Underlying: %s\n", market.FormatPercent(a.CurrentValue))
		fmt.Fprintf(&b, "Gap:        %s\n", market.FormatChange(a.ChangePercent))
	} else {
		fmt.Fprintf(&b, "Previous: %s\n", market.FormatPercent(a.PreviousValue))
		fmt.Fprintf(&b, "Current:  %s\n", market.FormatPercent(a.CurrentValue))
		fmt.Fprintf(&b, "Change:   %s\n", market.FormatChange(a.ChangePercent))
	}
	if a.Pool != nil {
		fmt.Fprintf(&b, "\n🔗 %s", html.EscapeString(market.MarketURL(a.Pool)))
	}
	return b.String()
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run starts the long-polling loop for incoming Telegram commands.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := b.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("poll updates", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

func (b *Bot) poll(ctx context.Context) error {
	var result updatesResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("offset", fmt.Sprint(b.offset)).
		SetQueryParam("timeout", "30").
		SetResult(&result).
		Get("/getUpdates")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("get updates: status %d", resp.StatusCode())
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil {
			continue
		}
		b.handle(ctx, u.Message.Chat.ID, strings.TrimSpace(u.Message.Text))
	}
	return nil
}

func (b *Bot) handle(ctx context.Context, chatID int64, text string) {
	// Commands may carry a @botname suffix in group chats.
	cmd, _, _ := strings.Cut(text, "@")

	var reply string
	switch cmd {
	case "/start", "/help":
		reply = helpText
	case "/status":
		reply = b.statusText(ctx)
	case "/alerts":
		reply = b.alertsText(ctx)
	default:
		reply = "Unknown command. Send /help for available commands."
	}
	if err := b.SendMessage(ctx, chatID, reply); err != nil {
		b.logger.Error("reply failed", "chat_id", chatID, "command", cmd, "error", err)
	}
}

const helpText = "🤖 <b>Yield Monitor Bot</b>\n\n" +
	"Commands:\n" +
	"/status - Data freshness per platform\n" +
	"/alerts - Latest unreviewed alerts\n" +
	"/help - Show this message"

func (b *Bot) statusText(ctx context.Context) string {
	if b.data == nil {
		return "Status is not available."
	}
	health, err := b.data.PlatformHealth(ctx)
	if err != nil {
		b.logger.Error("platform health", "error", err)
		return "Error fetching platform status."
	}
	icons := map[string]string{"fresh": "🟢", "stale": "🟡", "error": "🔴"}
	now := time.Now()

	var sb strings.Builder
	sb.WriteString("📊 <b>Platform status</b>\n\n")
	for _, h := range health {
		status := h.Status(now)
		last := "never"
		if h.LastUpdate != nil {
			last = now.Sub(*h.LastUpdate).Round(time.Minute).String() + " ago"
		}
		fmt.Fprintf(&sb, "%s %s: %d pools, updated %s\n", icons[status], h.Platform.Label(), h.PoolCount, last)
	}
	return sb.String()
}

func (b *Bot) alertsText(ctx context.Context) string {
	if b.data == nil {
		return "Alerts are not available."
	}
	alerts, err := b.data.ListAlerts(ctx, store.AlertFilter{Status: market.StatusNew, Limit: 5})
	if err != nil {
		b.logger.Error("list alerts", "error", err)
		return "Error fetching alerts."
	}
	if len(alerts) == 0 {
		return "✅ No new alerts."
	}

	var sb strings.Builder
	sb.WriteString("🚨 <b>Latest alerts</b>\n\n")
	for _, a := range alerts {
		name := "unknown pool"
		if a.Pool != nil {
			name = a.Pool.DisplayName()
		}
		fmt.Fprintf(&sb, "• %s: %s %s\n", html.EscapeString(name), html.EscapeString(a.Label()), market.FormatChange(a.ChangePercent))
	}
	return sb.String()
}
