package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/dashboard"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

type SenderHealthChecker struct {
	healthFunc func(ctx context.Context) error
}

func NewSenderHealthChecker(healthFunc func(ctx context.Context) error) *SenderHealthChecker {
	return &SenderHealthChecker{healthFunc: healthFunc}
}

func (c *SenderHealthChecker) Name() string {
	return "sender"
}

func (c *SenderHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.healthFunc(ctx); err != nil {
		return StatusDegraded, err.Error()
	}
	return StatusHealthy, ""
}

type BufferHealthChecker struct {
	countFunc func(ctx context.Context) (int64, error)
	threshold int64
}

func NewBufferHealthChecker(countFunc func(ctx context.Context) (int64, error)) *BufferHealthChecker {
	return &BufferHealthChecker{countFunc: countFunc, threshold: 1000}
}

func (c *BufferHealthChecker) Name() string {
	return "buffer"
}

func (c *BufferHealthChecker) Check(ctx context.Context) (Status, string) {
	count, err := c.countFunc(ctx)
	if err != nil {
		return StatusUnhealthy, err.Error()
	}

	if count > c.threshold {
		return StatusDegraded, fmt.Sprintf("%d reports waiting", count)
	}

	return StatusHealthy, ""
}

// BreakerHealthChecker reports the source circuit breaker. An open breaker
// means the store has been failing; half-open means it is being probed.
type BreakerHealthChecker struct {
	stateFunc func() string
}

func NewBreakerHealthChecker(stateFunc func() string) *BreakerHealthChecker {
	return &BreakerHealthChecker{stateFunc: stateFunc}
}

func (c *BreakerHealthChecker) Name() string {
	return "source"
}

func (c *BreakerHealthChecker) Check(_ context.Context) (Status, string) {
	switch state := c.stateFunc(); state {
	case "closed":
		return StatusHealthy, ""
	case "half-open":
		return StatusDegraded, "breaker half-open"
	default:
		return StatusUnhealthy, "breaker " + state
	}
}

// FreshnessChecker degrades when the latest report is older than staleAfter.
type FreshnessChecker struct {
	state      *dashboard.State
	staleAfter time.Duration
	now        func() time.Time
}

func NewFreshnessChecker(state *dashboard.State, staleAfter time.Duration) *FreshnessChecker {
	return &FreshnessChecker{state: state, staleAfter: staleAfter, now: time.Now}
}

func (c *FreshnessChecker) Name() string {
	return "freshness"
}

func (c *FreshnessChecker) Check(_ context.Context) (Status, string) {
	report, err := c.state.Latest()
	if errors.Is(err, dashboard.ErrNoReport) {
		return StatusDegraded, "waiting for first refresh"
	}

	age := c.now().Sub(report.GeneratedAt)
	if c.staleAfter > 0 && age > c.staleAfter {
		return StatusDegraded, fmt.Sprintf("last report is %s old", age.Round(time.Second))
	}
	if report.NoData {
		return StatusDegraded, report.Notice
	}

	return StatusHealthy, ""
}
