package health

import (
	"context"
	"time"

	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

// TablesChecker reports the live category table registry
type TablesChecker struct {
	store *pdpm.Store
}

func NewTablesChecker(store *pdpm.Store) *TablesChecker { return &TablesChecker{store: store} }

func (t *TablesChecker) Name() string           { return "category_tables" }
func (t *TablesChecker) IsCritical() bool       { return true }
func (t *TablesChecker) Timeout() time.Duration { return time.Second }

func (t *TablesChecker) Check(context.Context) CheckResult {
	reg := t.store.Registry()
	if reg == nil || reg.Len() == 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "no category tables loaded"}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "category tables loaded",
		Details: map[string]interface{}{"source": reg.Source(), "tables": reg.Len()},
	}
}

// Pinger is anything with a connectivity probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger such as the database or the entry cache. Responses
// slower than slowAfter are reported as degraded.
type PingChecker struct {
	name      string
	target    Pinger
	critical  bool
	timeout   time.Duration
	slowAfter time.Duration
}

func NewPingChecker(name string, target Pinger, critical bool) *PingChecker {
	return &PingChecker{
		name:      name,
		target:    target,
		critical:  critical,
		timeout:   3 * time.Second,
		slowAfter: 250 * time.Millisecond,
	}
}

func (p *PingChecker) Name() string           { return p.name }
func (p *PingChecker) IsCritical() bool       { return p.critical }
func (p *PingChecker) Timeout() time.Duration { return p.timeout }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := p.target.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: p.name + " unreachable", Error: err.Error()}
	}
	latency := time.Since(start)
	res := CheckResult{
		Status:  StatusHealthy,
		Message: p.name + " reachable",
		Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
	}
	if latency > p.slowAfter {
		res.Status = StatusDegraded
		res.Message = p.name + " responding slowly"
	}
	return res
}
