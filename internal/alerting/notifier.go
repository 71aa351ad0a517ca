package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned when asked to deliver blank text.
var ErrEmptyMessage = errors.New("alerting: empty message")

// Notifier delivers one text message to a fixed destination.
// Markup inside text is passed through untouched.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramOptions parameterise the Telegram notifiers.
type TelegramOptions struct {
	BotToken  string
	ChatID    string
	APIBase   string
	ParseMode string
	Timeout   time.Duration
}

func (o TelegramOptions) withDefaults() TelegramOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	o.APIBase = strings.TrimRight(o.APIBase, "/")
	if o.APIBase == "" {
		o.APIBase = "https://api.telegram.org"
	}
	return o
}

// TelegramNotifier posts messages through the Bot API sendMessage method as JSON.
type TelegramNotifier struct {
	opts   TelegramOptions
	client *http.Client
	logger zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	opts = opts.withDefaults()
	return &TelegramNotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send calls sendMessage once.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.opts.ChatID,
		Text:      text,
		ParseMode: n.opts.ParseMode,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.opts.APIBase, n.opts.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", redactToken(err, n.opts.BotToken))
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	decodeErr := json.Unmarshal(payload, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if readErr != nil {
		return fmt.Errorf("read telegram response: %w", readErr)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Int("length", len(text)).Msg("message delivered (telegram)")
	return nil
}

// redactToken keeps the bot token out of error strings that embed the request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

// Discard drops every message. It is used when alerting is disabled.
type Discard struct {
	logger zerolog.Logger
}

// NewDiscard builds a Discard notifier that logs what it drops at debug level.
func NewDiscard(logger zerolog.Logger) *Discard {
	return &Discard{logger: logger.With().Str("component", "alert_discard").Logger()}
}

// Send implements Notifier.
func (d *Discard) Send(ctx context.Context, text string) error {
	d.logger.Debug().Str("text", text).Msg("alerting disabled; message dropped")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Discard)(nil)
)
