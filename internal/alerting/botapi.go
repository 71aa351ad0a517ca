package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotAPINotifier delivers messages through go-telegram-bot-api. The bot is
// authorised lazily on first use so construction never touches the network.
type BotAPINotifier struct {
	opts   TelegramOptions
	client *http.Client
	logger zerolog.Logger

	botMux sync.Mutex
	bot    *tgbotapi.BotAPI
}

// NewBotAPINotifier builds a BotAPINotifier.
func NewBotAPINotifier(opts TelegramOptions, logger zerolog.Logger) *BotAPINotifier {
	opts = opts.withDefaults()
	return &BotAPINotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "alert_botapi").Logger(),
	}
}

// Send implements Notifier. The bot library has no context support, so ctx is
// only checked before the call; the HTTP client timeout bounds the request.
func (n *BotAPINotifier) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := n.getBot()
	if err != nil {
		return err
	}

	msg := n.newMessage(text)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", redactToken(err, n.opts.BotToken))
	}

	n.logger.Info().Int("length", len(text)).Msg("message delivered (bot api)")
	return nil
}

// newMessage addresses numeric chat ids directly and anything else as a channel username.
func (n *BotAPINotifier) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(n.opts.ChatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(n.opts.ChatID, text)
	}
	msg.ParseMode = n.opts.ParseMode
	return msg
}

func (n *BotAPINotifier) getBot() (*tgbotapi.BotAPI, error) {
	n.botMux.Lock()
	defer n.botMux.Unlock()

	if n.bot != nil {
		return n.bot, nil
	}

	endpoint := n.opts.APIBase + "/bot%s/%s"
	bot, err := tgbotapi.NewBotAPIWithClient(n.opts.BotToken, endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("authorise telegram bot: %w", redactToken(err, n.opts.BotToken))
	}
	n.logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorised")
	n.bot = bot
	return bot, nil
}

var _ Notifier = (*BotAPINotifier)(nil)
