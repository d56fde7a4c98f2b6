package providers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/n8nhost/console/db"
)

// Message is what every channel type knows how to deliver.
type Message struct {
	Title    string
	Body     string
	Priority int
	Severity string
	Tags     []string
	ClickURL string
}

// Text renders title and body as a single plain text block.
func (m Message) Text() string {
	if m.Title == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Title
	}
	return m.Title + "\n" + m.Body
}

// Subject is used where a channel needs a one line summary.
func (m Message) Subject() string {
	subject := m.Title
	if subject == "" {
		subject = firstLine(m.Body)
	}
	if m.Severity != "" {
		subject = fmt.Sprintf("[%s] %s", strings.ToUpper(m.Severity), subject)
	}
	return subject
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// configString reads a string value from a channel's JSON config.
func configString(ch db.Channel, key string) string {
	switch v := ch.Config[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// RequiredConfig lists the config keys each channel type must carry.
var RequiredConfig = map[string][]string{
	db.ChannelNtfy:     {"topic"},
	db.ChannelSlack:    {"url"},
	db.ChannelDiscord:  {"url"},
	db.ChannelWebhook:  {"url"},
	db.ChannelEmail:    {"to"},
	db.ChannelTelegram: {"chat_id"},
	db.ChannelFCM:      {},
}

// ValidateChannel checks the type and the presence of required config keys.
func ValidateChannel(ch db.Channel) error {
	required, ok := RequiredConfig[ch.ChannelType]
	if !ok {
		return fmt.Errorf("unsupported channel type %q", ch.ChannelType)
	}
	for _, key := range required {
		if configString(ch, key) == "" {
			return fmt.Errorf("%s channel requires config.%s", ch.ChannelType, key)
		}
	}
	if ch.ChannelType == db.ChannelFCM && configString(ch, "token") == "" && configString(ch, "topic") == "" {
		return fmt.Errorf("fcm channel requires config.token or config.topic")
	}
	return nil
}
