package source

import (
	"context"
	"sort"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

//go:generate mockgen -destination=mock_source.go -package=source github.com/speedwagon-io/soilwatch/internal/source Source

// Source reads sensor data from the remote store.
type Source interface {
	// History returns every retained reading keyed by record id.
	History(ctx context.Context) (map[string]model.RawRecord, error)
	// Current returns the latest snapshot, or nil when the store holds none.
	Current(ctx context.Context) (model.RawRecord, error)
	Name() string
	Close() error
}

// Records flattens a history map into a slice ordered by record id so that
// the derivation pass sees the same input order on every cycle.
func Records(history map[string]model.RawRecord) []model.RawRecord {
	ids := make([]string, 0, len(history))
	for id := range history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]model.RawRecord, 0, len(ids))
	for _, id := range ids {
		if rec := history[id]; rec != nil {
			records = append(records, rec)
		}
	}
	return records
}
