package adapters

import (
	"fmt"
	"strconv"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

// decodeHistory converts a decoded history node into records keyed by id.
// The realtime database returns a JSON array instead of an object when all
// keys are small integers, so both shapes are accepted. Entries that are not
// objects are skipped.
func decodeHistory(v any) (map[string]model.RawRecord, int, error) {
	history := make(map[string]model.RawRecord)
	skipped := 0

	switch node := v.(type) {
	case nil:
		return history, 0, nil
	case map[string]any:
		for id, entry := range node {
			rec, ok := entry.(map[string]any)
			if !ok {
				skipped++
				continue
			}
			history[id] = rec
		}
	case []any:
		for i, entry := range node {
			if entry == nil {
				continue
			}
			rec, ok := entry.(map[string]any)
			if !ok {
				skipped++
				continue
			}
			history[strconv.Itoa(i)] = rec
		}
	default:
		return nil, 0, fmt.Errorf("unexpected history node type %T", v)
	}

	return history, skipped, nil
}

// decodeCurrent converts the current snapshot node. A missing node is not an
// error and yields a nil record.
func decodeCurrent(v any) (model.RawRecord, error) {
	switch node := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return node, nil
	default:
		return nil, fmt.Errorf("unexpected current node type %T", v)
	}
}
