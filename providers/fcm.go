package providers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

// FCMSender pushes to a device token or an FCM topic. The Firebase client is
// created on first use.
type FCMSender struct {
	CredentialsFile string

	once    sync.Once
	client  *messaging.Client
	initErr error
}

func NewFCMSender(credentialsFile string) *FCMSender {
	return &FCMSender{CredentialsFile: credentialsFile}
}

func (f *FCMSender) messagingClient(ctx context.Context) (*messaging.Client, error) {
	f.once.Do(func() {
		if f.CredentialsFile == "" {
			f.initErr = fmt.Errorf("firebase credentials file is not configured")
			return
		}
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(f.CredentialsFile))
		if err != nil {
			f.initErr = fmt.Errorf("firebase app not initialized: %w", err)
			return
		}
		f.client, f.initErr = app.Messaging(ctx)
	})
	return f.client, f.initErr
}

func (f *FCMSender) Send(ctx context.Context, ch db.Channel, msg Message) error {
	client, err := f.messagingClient(ctx)
	if err != nil {
		return err
	}

	androidPriority := "normal"
	if msg.Priority >= rules.PriorityHigh {
		androidPriority = "high"
	}
	message := &messaging.Message{
		Token: configString(ch, "token"),
		Topic: configString(ch, "topic"),
		Notification: &messaging.Notification{
			Title: msg.Subject(),
			Body:  msg.Body,
		},
		Data: map[string]string{
			"severity": msg.Severity,
			"priority": strconv.Itoa(msg.Priority),
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
	}
	if _, err := client.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}
