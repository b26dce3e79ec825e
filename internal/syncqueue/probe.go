package syncqueue

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// Probe watches connectivity to the back office by dialing the sync
// transport's address. It replaces browser online/offline events with an
// actual reachability check.
type Probe struct {
	mu          sync.RWMutex
	online      bool
	forced      bool // manual override active (maintenance, tests)
	addr        string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// NewProbe creates a probe for addr. The probe starts online; the first
// Check corrects that if the back office is unreachable.
func NewProbe(addr string) *Probe {
	util.TerminalOnline.Set(1)
	return &Probe{
		online:      true,
		addr:        addr,
		dialTimeout: 2 * time.Second,
		logger:      util.NamedLogger("probe"),
	}
}

// Online reports the last observed connectivity state.
func (p *Probe) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// SetOnline forces the connectivity state, bypassing the dial check.
// Used when a terminal is deliberately taken off the network.
func (p *Probe) SetOnline(online bool) {
	p.mu.Lock()
	p.online = online
	p.forced = true
	p.mu.Unlock()
	p.setGauge(online)
}

// ClearOverride resumes dial-based detection.
func (p *Probe) ClearOverride() {
	p.mu.Lock()
	p.forced = false
	p.mu.Unlock()
}

// Check dials the back office and records the result. Returns the new
// state, and whether this check was an offline-to-online transition.
func (p *Probe) Check(ctx context.Context) (online, reconnected bool) {
	p.mu.RLock()
	forced, was := p.forced, p.online
	p.mu.RUnlock()
	if forced {
		return was, false
	}

	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	online = err == nil
	if conn != nil {
		_ = conn.Close()
	}

	p.mu.Lock()
	was = p.online
	p.online = online
	p.mu.Unlock()
	p.setGauge(online)

	if online != was {
		if online {
			p.logger.Info("Back office reachable again", zap.String("addr", p.addr))
		} else {
			p.logger.Warn("Back office unreachable, entering offline mode",
				zap.String("addr", p.addr), zap.Error(err))
		}
	}
	return online, online && !was
}

// Watch polls connectivity until ctx is cancelled, invoking onReconnect
// after each offline-to-online transition.
func (p *Probe) Watch(ctx context.Context, interval time.Duration, onReconnect func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, reconnected := p.Check(ctx); reconnected && onReconnect != nil {
				onReconnect()
			}
		}
	}
}

func (p *Probe) setGauge(online bool) {
	if online {
		util.TerminalOnline.Set(1)
	} else {
		util.TerminalOnline.Set(0)
	}
}
