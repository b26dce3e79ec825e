package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

// EventPublisher handles publishing register domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleCompleted publishes SaleCompleted event
func (ep *EventPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	key := fmt.Sprintf("sale-%s", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSaleSynced publishes SaleSynced event
func (ep *EventPublisher) PublishSaleSynced(ctx context.Context, event *models.SaleSyncedEvent) error {
	key := fmt.Sprintf("sale-%s", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentDeclined publishes PaymentDeclined event
func (ep *EventPublisher) PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error {
	key := fmt.Sprintf("sale-%s", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockCommitted publishes StockCommitted event
func (ep *EventPublisher) PublishStockCommitted(ctx context.Context, event *models.StockCommittedEvent) error {
	key := fmt.Sprintf("sale-%s", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// SubmitRaw re-publishes a payload captured while offline, keyed by the
// originating sync record id.
func (ep *EventPublisher) SubmitRaw(ctx context.Context, recordID string, payload []byte) error {
	return ep.producer.PublishRaw(ctx, fmt.Sprintf("sync-%s", recordID), payload)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSaleCompleted func(context.Context, *models.SaleCompletedEvent) error
	onSaleSynced    func(context.Context, *models.SaleSyncedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSaleCompleted registers a handler for SaleCompleted events
func (eh *EventHandler) OnSaleCompleted(handler func(context.Context, *models.SaleCompletedEvent) error) {
	eh.onSaleCompleted = handler
}

// OnSaleSynced registers a handler for SaleSynced events
func (eh *EventHandler) OnSaleSynced(handler func(context.Context, *models.SaleSyncedEvent) error) {
	eh.onSaleSynced = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeSaleCompleted:
		if eh.onSaleCompleted != nil {
			var event models.SaleCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleCompleted event: %w", err)
			}
			return eh.onSaleCompleted(ctx, &event)
		}

	case models.EventTypeSaleSynced:
		if eh.onSaleSynced != nil {
			var event models.SaleSyncedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleSynced event: %w", err)
			}
			return eh.onSaleSynced(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
