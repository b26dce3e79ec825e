// Package syncqueue holds sales completed while the terminal was
// offline and flushes them to the back office once connectivity
// returns. Records are persisted, so a terminal restart does not lose
// queued sales.
package syncqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/config"
	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// Transport carries queued payloads to the back office.
type Transport interface {
	SubmitRaw(ctx context.Context, recordID string, payload []byte) error
}

// Store persists queue records across restarts.
type Store interface {
	CreatePendingSync(ctx context.Context, rec *models.PendingSyncRecord) error
	GetPendingSyncRecords(ctx context.Context) ([]models.PendingSyncRecord, error)
	UpdatePendingSyncStatus(ctx context.Context, id, status string, retryCount int) error
	ResetStalledSyncRecords(ctx context.Context) (int64, error)
}

// Connectivity reports whether the back office is reachable.
type Connectivity interface {
	Online() bool
}

// FlushResult summarizes one flush pass. Progress is a function of
// actually acknowledged records, not a timer.
type FlushResult struct {
	Offline bool `json:"offline"`
	Total   int  `json:"total"`
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
}

// Progress returns the acknowledged percentage of this pass.
func (r FlushResult) Progress() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Synced) / float64(r.Total) * 100
}

// Queue is the offline sync queue. Flushes are single-flight.
type Queue struct {
	mu        sync.Mutex
	flushing  bool
	store     Store
	transport Transport
	probe     Connectivity

	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration

	logger *zap.Logger
	now    func() time.Time
}

// New creates the queue.
func New(store Store, transport Transport, probe Connectivity, cfg config.SyncConfig) *Queue {
	return &Queue{
		store:        store,
		transport:    transport,
		probe:        probe,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		logger:       util.NamedLogger("syncqueue"),
		now:          time.Now,
	}
}

// Enqueue persists a record captured while offline.
func (q *Queue) Enqueue(ctx context.Context, rec *models.PendingSyncRecord) error {
	if rec.Status == "" {
		rec.Status = models.SyncStatusPending
	}
	if err := q.store.CreatePendingSync(ctx, rec); err != nil {
		return err
	}
	util.SyncQueueDepth.Inc()
	q.logger.Info("Queued record for sync",
		zap.String("record_id", rec.ID),
		zap.String("type", rec.Type))
	return nil
}

// Recover returns records left in syncing by an interrupted flush to
// pending so the next flush picks them up. Called once at startup; the
// single-flight guard means no flush is in progress then.
func (q *Queue) Recover(ctx context.Context) error {
	n, err := q.store.ResetStalledSyncRecords(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.logger.Warn("Recovered records from interrupted flush", zap.Int64("count", n))
	}
	return nil
}

// Pending lists records still awaiting sync.
func (q *Queue) Pending(ctx context.Context) ([]models.PendingSyncRecord, error) {
	return q.store.GetPendingSyncRecords(ctx)
}

// Flush submits every eligible pending record to the transport and marks
// each synced or failed from its individual outcome. While offline the
// flush refuses and changes nothing. A record that failed recently waits
// out an exponential backoff window before it is retried.
func (q *Queue) Flush(ctx context.Context) (*FlushResult, error) {
	if !q.probe.Online() {
		return &FlushResult{Offline: true}, nil
	}

	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return &FlushResult{}, nil
	}
	q.flushing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	start := q.now()
	defer func() {
		util.SyncFlushLatency.Observe(time.Since(start).Seconds())
	}()

	records, err := q.store.GetPendingSyncRecords(ctx)
	if err != nil {
		return nil, err
	}

	result := &FlushResult{}
	for _, rec := range records {
		if !q.eligible(rec) {
			result.Skipped++
			continue
		}
		result.Total++

		if err := q.store.UpdatePendingSyncStatus(ctx, rec.ID, models.SyncStatusSyncing, rec.RetryCount); err != nil {
			q.logger.Error("Failed to mark record syncing", zap.String("record_id", rec.ID), zap.Error(err))
		}

		if err := q.transport.SubmitRaw(ctx, rec.ID, rec.Payload); err != nil {
			retries := rec.RetryCount + 1
			if uerr := q.store.UpdatePendingSyncStatus(ctx, rec.ID, models.SyncStatusFailed, retries); uerr != nil {
				q.logger.Error("Failed to mark record failed", zap.String("record_id", rec.ID), zap.Error(uerr))
			}
			util.SyncRecordsTotal.WithLabelValues("failed").Inc()
			result.Failed++
			q.logger.Warn("Sync record failed",
				zap.String("record_id", rec.ID),
				zap.Int("retry_count", retries),
				zap.Error(err))
			continue
		}

		if err := q.store.UpdatePendingSyncStatus(ctx, rec.ID, models.SyncStatusSynced, rec.RetryCount); err != nil {
			q.logger.Error("Failed to mark record synced", zap.String("record_id", rec.ID), zap.Error(err))
		}
		util.SyncRecordsTotal.WithLabelValues("synced").Inc()
		util.SyncQueueDepth.Dec()
		result.Synced++
	}

	if result.Total > 0 {
		q.logger.Info("Sync flush finished",
			zap.Int("synced", result.Synced),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
			zap.Float64("progress", result.Progress()))
	}
	return result, nil
}

// eligible applies the backoff window: a failed record waits
// initialDelay * 2^(retries-1), capped at maxDelay, before retrying.
// Records past maxRetries are left alone for manual review.
func (q *Queue) eligible(rec models.PendingSyncRecord) bool {
	if rec.Status != models.SyncStatusFailed {
		return true
	}
	if q.maxRetries > 0 && rec.RetryCount >= q.maxRetries {
		return false
	}

	delay := q.initialDelay
	for i := 1; i < rec.RetryCount; i++ {
		delay *= 2
		if delay >= q.maxDelay {
			delay = q.maxDelay
			break
		}
	}
	return !q.now().Before(rec.UpdatedAt.Add(delay))
}
