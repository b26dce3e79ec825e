package worker

import (
	"context"
	"log"
	"time"

	"github.com/aamircoretechies/bison360-sub000/internal/broker"
	"github.com/aamircoretechies/bison360-sub000/internal/service"
	"github.com/aamircoretechies/bison360-sub000/internal/syncqueue"
)

// BackOfficeWorker consumes register events and feeds the back office
// ingester.
type BackOfficeWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	backOffice   *service.BackOffice
}

// NewBackOfficeWorker creates a new back office worker
func NewBackOfficeWorker(
	consumer *broker.Consumer,
	backOffice *service.BackOffice,
) *BackOfficeWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCompleted(backOffice.HandleSaleCompleted)
	eventHandler.OnSaleSynced(backOffice.HandleSaleSynced)

	return &BackOfficeWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		backOffice:   backOffice,
	}
}

// Start starts the worker
func (w *BackOfficeWorker) Start(ctx context.Context) error {
	log.Println("Starting back office worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BackOfficeWorker) Stop() error {
	log.Println("Stopping back office worker...")
	return w.consumer.Close()
}

// SyncWorker flushes the offline queue on an interval and immediately
// after connectivity returns.
type SyncWorker struct {
	queue    *syncqueue.Queue
	probe    *syncqueue.Probe
	interval time.Duration
	probeGap time.Duration
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(queue *syncqueue.Queue, probe *syncqueue.Probe, interval, probeGap time.Duration) *SyncWorker {
	return &SyncWorker{
		queue:    queue,
		probe:    probe,
		interval: interval,
		probeGap: probeGap,
	}
}

// Start runs the connectivity watcher and the periodic flush loop until
// ctx is cancelled.
func (sw *SyncWorker) Start(ctx context.Context) error {
	log.Println("Starting sync worker...")

	if err := sw.queue.Recover(ctx); err != nil {
		log.Printf("Queue recovery error: %v", err)
	}

	go sw.probe.Watch(ctx, sw.probeGap, func() {
		if _, err := sw.queue.Flush(ctx); err != nil {
			log.Printf("Reconnect flush error: %v", err)
		}
	})

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			if _, err := sw.queue.Flush(ctx); err != nil {
				log.Printf("Periodic flush error: %v", err)
			}
		}
	}
}
