package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts through the Bot API sendMessage call.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	log      zerolog.Logger
}

// NewTelegramNotifier creates a notifier posting to chatID as the bot.
func NewTelegramNotifier(botToken, chatID string, l zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      l.With().Str("component", "telegram").Logger(),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := map[string]any{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
		// session alerts are informational; signals should ring
		"disable_notification": alert.Kind == KindSession && alert.Level != AlertCritical,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	if err := postJSON(ctx, t.client, url, msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	t.log.Debug().Str("title", alert.Title).Msg("sent alert")
	return nil
}

// telegramText renders the alert as MarkdownV2. Signal alerts get one line
// per indicator reading.
func telegramText(alert Alert) string {
	icon := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	if d := alert.Decision; d != nil {
		switch d.Action {
		case model.ActionBuy:
			icon = "🟢"
		case model.ActionSell:
			icon = "🔴"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", icon, escapeMarkdown(alert.Title))
	d := alert.Decision
	if d == nil {
		b.WriteString("\n" + escapeMarkdown(alert.Message))
		return b.String()
	}
	lines := []string{
		"bar    " + d.TS.In(markethours.IST).Format("2006-01-02 15:04"),
		fmt.Sprintf("close  %.2f", d.Close),
		"bias   " + d.Bias.String(),
		"vwap   " + d.VWAP.String(),
		"rsi    " + d.RSI.String(),
		fmt.Sprintf("tol    %.2f", d.Tolerance),
	}
	b.WriteString("```\n")
	for _, l := range lines {
		b.WriteString(escapeCode(l) + "\n")
	}
	b.WriteString("```")
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!\\"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeCode escapes inside a pre block, where only ` and \ are special.
func escapeCode(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s)
}
