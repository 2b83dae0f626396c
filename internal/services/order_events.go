package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/example/zar/internal/models"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"

	eventVersion = 1
)

// EventEnvelope is the value of every message on the order events topic.
type EventEnvelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

// OrderEventPayload describes the order an event is about.
type OrderEventPayload struct {
	OrderID        uint               `json:"order_id"`
	TrackingCode   string             `json:"tracking_code"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	Total          decimal.Decimal    `json:"total"`
}

// PayloadFromOrder builds an event payload from a stored order.
func PayloadFromOrder(order *models.Order) OrderEventPayload {
	return OrderEventPayload{
		OrderID:      order.ID,
		TrackingCode: order.TrackingCode,
		Status:       order.Status,
		Total:        order.Total,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEvents publishes order lifecycle events. A nil *OrderEvents is a
// valid publisher that drops everything.
type OrderEvents struct {
	writer   MessageWriter
	producer string
	now      func() time.Time
}

// NewOrderEvents wraps writer. producer names this service in envelopes.
func NewOrderEvents(writer MessageWriter, producer string) *OrderEvents {
	return &OrderEvents{writer: writer, producer: producer, now: time.Now}
}

// NewKafkaOrderEvents returns a publisher for topic, or nil when no brokers
// are configured. Messages are keyed by order id and land on the same
// partition, so events of one order keep the order in which Publish was
// called; callers that publish concurrently must serialise themselves.
func NewKafkaOrderEvents(brokers []string, topic, producer string) *OrderEvents {
	if len(brokers) == 0 {
		return nil
	}
	return NewOrderEvents(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}, producer)
}

// Publish writes one event and waits for the broker acknowledgement.
func (e *OrderEvents) Publish(ctx context.Context, eventType string, payload OrderEventPayload) error {
	if e == nil || e.writer == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(EventEnvelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: eventVersion,
		OccurredAt:   e.now().UTC(),
		Producer:     e.producer,
		Payload:      body,
	})
	if err != nil {
		return err
	}

	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(payload.OrderID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
		},
	})
}

// Close flushes and closes the underlying writer.
func (e *OrderEvents) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
