package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/broker"
	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/store"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// BackOffice ingests register events on the head-office side of the
// sync boundary. Event handling is idempotent via the processed_events
// table, so a replayed or double-flushed sale cannot be ingested twice.
type BackOffice struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewBackOffice creates a new back office ingester
func NewBackOffice(store *store.Store, eventPublisher *broker.EventPublisher) *BackOffice {
	return &BackOffice{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.NamedLogger("backoffice"),
	}
}

// HandleSaleCompleted acknowledges a register sale, marking it synced.
func (bo *BackOffice) HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "BackOffice.HandleSaleCompleted")
	defer span.End()

	processed, err := bo.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		bo.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	bo.logger.Info("Ingesting sale",
		zap.String("sale_id", event.SaleID),
		zap.String("terminal_id", event.TerminalID),
		zap.Bool("offline_queued", event.OfflineQueued))

	if err := bo.store.UpdateSaleStatus(ctx, event.SaleID, models.SaleStatusSynced); err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}

	ack := &models.SaleSyncedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleSynced,
			Timestamp: time.Now(),
		},
		SaleID:     event.SaleID,
		TerminalID: event.TerminalID,
	}
	if err := bo.eventPublisher.PublishSaleSynced(ctx, ack); err != nil {
		bo.logger.Error("Failed to publish SaleSynced event", zap.Error(err))
	}

	if err := bo.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		bo.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	bo.logger.Info("Sale synced", zap.String("sale_id", event.SaleID))
	return nil
}

// HandleSaleSynced consumes the back office's own ack. The register and
// back office share a topic in this deployment, so the ack loops back
// here; it is recorded and dropped.
func (bo *BackOffice) HandleSaleSynced(ctx context.Context, event *models.SaleSyncedEvent) error {
	processed, err := bo.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	bo.logger.Debug("Sale sync acknowledged",
		zap.String("sale_id", event.SaleID),
		zap.String("terminal_id", event.TerminalID))

	if err := bo.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		bo.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
