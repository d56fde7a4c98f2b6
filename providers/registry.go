// Package providers delivers notifications to the configured channel types.
package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/config"
	"github.com/n8nhost/console/internal/logging"
)

// SendFunc delivers one message to one channel.
type SendFunc func(ctx context.Context, ch db.Channel, msg Message) error

// Registry routes a message to the sender of its channel type. Every send
// goes through a per-type rate limiter and is retried on failure.
type Registry struct {
	Attempts int
	Delay    time.Duration

	senders       map[string]SendFunc
	limiters      map[string]*rate.Limiter
	ratePerSecond int
	logger        *logging.Logger
	mu            sync.Mutex
}

// NewRegistry creates an empty registry. Use NewDefaultRegistry for one
// wired to every channel type.
func NewRegistry(ratePerSecond int, logger *logging.Logger) *Registry {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		Attempts:      3,
		Delay:         time.Second,
		senders:       make(map[string]SendFunc),
		limiters:      make(map[string]*rate.Limiter),
		ratePerSecond: ratePerSecond,
		logger:        logger,
	}
}

// NewDefaultRegistry wires all channel types from cfg.
func NewDefaultRegistry(cfg config.Config, logger *logging.Logger) *Registry {
	r := NewRegistry(cfg.Dispatch.RatePerSecond, logger)

	webhook := NewWebhookSender()
	r.Register(db.ChannelNtfy, NewNtfyClient(cfg.Ntfy.URL, cfg.Ntfy.Token).Send)
	r.Register(db.ChannelSlack, webhook.Slack)
	r.Register(db.ChannelDiscord, webhook.Discord)
	r.Register(db.ChannelWebhook, webhook.Webhook)
	r.Register(db.ChannelEmail, NewEmailSender(cfg.SendGrid, cfg.SMTP).Send)
	r.Register(db.ChannelTelegram, NewTelegramSender(cfg.Telegram.BotToken).Send)
	r.Register(db.ChannelFCM, NewFCMSender(cfg.Firebase.CredentialsFile).Send)
	return r
}

func (r *Registry) Register(channelType string, fn SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channelType] = fn
}

func (r *Registry) limiter(channelType string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[channelType]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.ratePerSecond)), r.ratePerSecond)
		r.limiters[channelType] = l
	}
	return l
}

// Send delivers msg to ch. Disabled channels are refused.
func (r *Registry) Send(ctx context.Context, ch db.Channel, msg Message) error {
	if !ch.Enabled {
		return fmt.Errorf("channel %s is disabled", ch.Name)
	}
	r.mu.Lock()
	send, ok := r.senders[ch.ChannelType]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported channel type %q", ch.ChannelType)
	}

	if err := r.limiter(ch.ChannelType).Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait failed: %w", ch.ChannelType, err)
	}

	return Retry(ctx, r.logger, r.Attempts, r.Delay, func() error {
		return send(ctx, ch, msg)
	})
}
