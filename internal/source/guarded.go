package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

// Guarded wraps a Source with a circuit breaker. While the breaker is open
// calls fail immediately with gobreaker.ErrOpenState instead of waiting for
// the store timeout on every cycle.
type Guarded struct {
	Source
	log *slog.Logger
	cb  *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	MaxFailures  uint32
	ResetTimeout time.Duration
}

func NewGuarded(log *slog.Logger, src Source, settings BreakerSettings) *Guarded {
	g := &Guarded{
		Source: src,
		log:    log.With(slog.String("component", "source-breaker")),
	}

	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        src.Name(),
		MaxRequests: 1,
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("breaker state changed",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return g
}

func (g *Guarded) History(ctx context.Context) (map[string]model.RawRecord, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.Source.History(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]model.RawRecord), nil
}

func (g *Guarded) Current(ctx context.Context) (model.RawRecord, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.Source.Current(ctx)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := res.(model.RawRecord)
	return rec, nil
}

// State reports the breaker state as "closed", "half-open" or "open".
func (g *Guarded) State() string {
	return g.cb.State().String()
}
