package providers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"

	"github.com/n8nhost/console/db"
)

// TelegramSender keeps one bot client per token.
type TelegramSender struct {
	DefaultToken string

	mu   sync.Mutex
	bots map[string]*bot.Bot
}

func NewTelegramSender(defaultToken string) *TelegramSender {
	return &TelegramSender{DefaultToken: defaultToken, bots: make(map[string]*bot.Bot)}
}

func (t *TelegramSender) client(token string) (*bot.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	t.bots[token] = b
	return b, nil
}

// chatID keeps numeric ids numeric and passes @channel names through.
func chatID(ch db.Channel) interface{} {
	raw := configString(ch, "chat_id")
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id
	}
	return raw
}

func (t *TelegramSender) Send(ctx context.Context, ch db.Channel, msg Message) error {
	token := configString(ch, "bot_token")
	if token == "" {
		token = t.DefaultToken
	}
	if token == "" {
		return fmt.Errorf("missing bot_token for Telegram channel %s", ch.Name)
	}
	b, err := t.client(token)
	if err != nil {
		return err
	}

	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)
	}
	params := &bot.SendMessageParams{
		ChatID:    chatID(ch),
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %v: %w", params.ChatID, err)
	}
	return nil
}
