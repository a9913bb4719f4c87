package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/inflation-map/internal/config"
	"github.com/couchcryptid/inflation-map/internal/reconcile"
)

// Writer produces surface command messages to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, clock: clock, logger: logger}
}

// LoadBatch serializes and publishes the commands of one reconciliation cycle
// in a single WriteMessages call. Commands are keyed by kind so each kind
// stays ordered within its partition.
func (w *Writer) LoadBatch(ctx context.Context, commands []reconcile.Command) error {
	if len(commands) == 0 {
		return nil
	}
	msgs, err := w.messages(commands)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d commands: %w", len(msgs), err)
	}
	w.logger.Debug("published surface commands", "count", len(msgs))
	return nil
}

// messages serializes one cycle's commands with a shared emitted_at stamp.
func (w *Writer) messages(commands []reconcile.Command) ([]kafkago.Message, error) {
	emittedAt := w.clock.Now()
	msgs := make([]kafkago.Message, len(commands))
	for i := range commands {
		msg, err := serializeToMessage(commands[i], emittedAt)
		if err != nil {
			return nil, err
		}
		msgs[i] = msg
	}
	return msgs, nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a surface command into a Kafka message.
func serializeToMessage(cmd reconcile.Command, emittedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize surface command: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(cmd.Kind),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "command", Value: []byte(cmd.Kind)},
			{Key: "emitted_at", Value: []byte(emittedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
