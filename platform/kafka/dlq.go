package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DLQMessage сообщение Dead Letter Queue
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int    `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`   // base64
	OriginalValue     string `json:"original_value"` // base64
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"` // RFC3339
	EventType         string `json:"event_type,omitempty"`
	EventID           string `json:"event_id,omitempty"`
	OrderID           string `json:"order_id,omitempty"`
}

// DLQMeta то, что удалось извлечь из ядовитого сообщения
type DLQMeta struct {
	EventType string
	EventID   string
	OrderID   string
}

// DeadLetterPublisher отправляет ядовитые сообщения в DLQ
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, meta DLQMeta) error
}

// DLQPublisher публикует сообщения в Dead Letter Queue
type DLQPublisher struct {
	logger *zap.Logger
	writer MessageWriter
	topic  string
}

// NewDLQPublisher создаёт publisher для DLQ поверх writer-а топика topic
func NewDLQPublisher(logger *zap.Logger, writer MessageWriter, topic string) *DLQPublisher {
	return &DLQPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Publish отправляет сообщение в DLQ
func (p *DLQPublisher) Publish(ctx context.Context, msg kafka.Message, cause error, meta DLQMeta) error {
	errorMsg := "unknown error"
	if cause != nil {
		errorMsg = cause.Error()
	}

	value, err := json.Marshal(DLQMessage{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       base64.StdEncoding.EncodeToString(msg.Key),
		OriginalValue:     base64.StdEncoding.EncodeToString(msg.Value),
		ErrorMessage:      errorMsg,
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		EventType:         meta.EventType,
		EventID:           meta.EventID,
		OrderID:           meta.OrderID,
	})
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}

	// ключ: order_id если удалось извлечь, иначе исходный
	key := msg.Key
	if meta.OrderID != "" {
		key = []byte(meta.OrderID)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		p.logger.Error("failed to publish message to DLQ",
			zap.Error(err),
			zap.String("dlq_topic", p.topic),
			zap.String("original_topic", msg.Topic),
			zap.Int("original_partition", msg.Partition),
			zap.Int64("original_offset", msg.Offset),
		)
		return err
	}

	p.logger.Warn("message sent to DLQ",
		zap.String("dlq_topic", p.topic),
		zap.String("original_topic", msg.Topic),
		zap.Int("original_partition", msg.Partition),
		zap.Int64("original_offset", msg.Offset),
		zap.String("error", errorMsg),
	)

	return nil
}

// Close закрывает writer DLQ
func (p *DLQPublisher) Close() error {
	return p.writer.Close()
}
