package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// ChargeResult is the gateway's answer to a tender attempt.
type ChargeResult struct {
	Approved     bool
	ProviderTxID string
	Reason       string
}

// PaymentGateway authorizes a tender. Charge must honor context
// cancellation: abandoning a terminal mid-payment aborts the call
// instead of leaving a dangling completion.
type PaymentGateway interface {
	Charge(ctx context.Context, saleID string, method models.PaymentMethod, amount decimal.Decimal) (*ChargeResult, error)
}

// SimulatedGateway stands in for the external payment processor. It
// applies a configurable latency and success rate; cash drawers cannot
// decline, so cash always approves.
type SimulatedGateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	latency     time.Duration
	successRate float64
	logger      *zap.Logger
}

// NewSimulatedGateway creates the mock processor.
func NewSimulatedGateway(latency time.Duration, successRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		latency:     latency,
		successRate: successRate,
		logger:      util.NamedLogger("gateway"),
	}
}

// Charge simulates the processor round trip.
func (g *SimulatedGateway) Charge(ctx context.Context, saleID string, method models.PaymentMethod, amount decimal.Decimal) (*ChargeResult, error) {
	ctx, span := util.StartSpan(ctx, "SimulatedGateway.Charge")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	g.logger.Info("Authorizing tender",
		zap.String("sale_id", saleID),
		zap.String("method", string(method)),
		zap.String("amount", amount.StringFixed(2)))

	timer := time.NewTimer(g.jitteredLatency())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if method != models.MethodCash && !g.roll() {
		g.logger.Warn("Tender declined",
			zap.String("sale_id", saleID),
			zap.String("method", string(method)))
		return &ChargeResult{Approved: false, Reason: "processor_declined"}, nil
	}

	return &ChargeResult{
		Approved:     true,
		ProviderTxID: fmt.Sprintf("TXN-%s", uuid.New().String()[:8]),
	}, nil
}

func (g *SimulatedGateway) jitteredLatency() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latency <= 0 {
		return time.Millisecond
	}
	jitter := time.Duration(g.rng.Int63n(int64(g.latency)/4 + 1))
	return g.latency + jitter
}

func (g *SimulatedGateway) roll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < g.successRate
}
