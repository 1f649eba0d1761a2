package dashboard

import (
	"errors"
	"sync"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

var ErrNoReport = errors.New("no report yet")

// State holds the latest report. The refresh loop is the only writer;
// HTTP handlers and background jobs read it concurrently.
type State struct {
	mu     sync.RWMutex
	latest *model.Report
}

func NewState() *State {
	return &State{}
}

func (s *State) Set(report *model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = report
}

// Latest returns the most recent report or ErrNoReport before the first
// cycle has finished. Callers must treat the report as read-only.
func (s *State) Latest() (*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoReport
	}
	return s.latest, nil
}
