package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/services"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads host system events from Kafka and feeds them to the
// dispatcher.
type Consumer struct {
	reader *kafkago.Reader
	events services.EventEmitter
	logger *logging.Logger
	cancel context.CancelFunc
}

func NewConsumer(cfg Config, events services.EventEmitter, logger *logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafkago.FirstOffset,
	})
	return &Consumer{reader: reader, events: events, logger: logger}, nil
}

// Decode parses one message into a system event.
func Decode(value []byte) (db.SystemEvent, error) {
	var ev db.SystemEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, err
	}
	if ev.EventType == "" {
		return ev, errors.New("event_type is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if ev.Source == "" {
		ev.Source = "kafka"
	}
	return ev, nil
}

// Handle decodes and emits one message. Bad messages are logged and skipped.
func (s *Consumer) Handle(ctx context.Context, msg kafkago.Message) {
	ev, err := Decode(msg.Value)
	if err != nil {
		s.logger.Errorf("invalid system event at offset %d: %v", msg.Offset, err)
		return
	}
	result, err := s.events.Emit(ctx, ev)
	if err != nil {
		s.logger.Errorf("emit %s failed: %v", ev.EventType, err)
		return
	}
	s.logger.WithField("event_type", ev.EventType).Infof("kafka event %s", result.Outcome)
}

func (s *Consumer) Start(wg *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Infof("kafka consumer started on %s", s.reader.Config().Topic)
		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					s.logger.Info("kafka consumer stopped")
					return
				}
				s.logger.Errorf("read message failed: %v", err)
				time.Sleep(time.Second)
				continue
			}
			s.Handle(ctx, msg)
		}
	}()
}

func (s *Consumer) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.reader.Close()
}
