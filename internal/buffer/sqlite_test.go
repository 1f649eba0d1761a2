package buffer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/soilwatch/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

func newTestBuffer(t *testing.T) *SQLiteBuffer {
	t.Helper()
	buf, err := NewSQLiteBuffer(slogdiscard.NewDiscardLogger(), filepath.Join(t.TempDir(), "nested", "buffer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { buf.Close() })
	return buf
}

func TestSQLiteBuffer_StoreAndGetPending(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)

	moisture := 38.0
	first := model.NewReport("field-1", "Field 1", model.Current{Present: true, Moisture: &moisture}, &model.Metrics{
		TotalReadings: 3,
		AvgMoisture:   42.5,
	})
	second := model.NewNoDataReport("field-1", "Field 1", model.Current{}, "history unavailable")

	require.NoError(t, buf.Store(ctx, first))
	require.NoError(t, buf.Store(ctx, second))
	require.NoError(t, buf.Store(ctx, first))

	count, err := buf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	pending, err := buf.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, 42.5, pending[0].Metrics.AvgMoisture)
	require.NotNil(t, pending[0].Current.Moisture)
	assert.Equal(t, 38.0, *pending[0].Current.Moisture)

	assert.Equal(t, second.ID, pending[1].ID)
	assert.True(t, pending[1].NoData)
	assert.Equal(t, "history unavailable", pending[1].Notice)

	limited, err := buf.GetPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteBuffer_MarkSent(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)

	a := model.NewReport("d", "D", model.Current{}, nil)
	b := model.NewReport("d", "D", model.Current{}, nil)
	require.NoError(t, buf.Store(ctx, a))
	require.NoError(t, buf.Store(ctx, b))

	require.NoError(t, buf.MarkSent(ctx, nil))
	require.NoError(t, buf.MarkSent(ctx, []string{a.ID}))

	pending, err := buf.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestSQLiteBuffer_Cleanup(t *testing.T) {
	ctx := context.Background()
	buf := newTestBuffer(t)

	require.NoError(t, buf.Store(ctx, model.NewReport("d", "D", model.Current{}, nil)))

	require.NoError(t, buf.Cleanup(ctx, time.Hour))
	count, err := buf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// A negative age puts the cutoff in the future.
	require.NoError(t, buf.Cleanup(ctx, -time.Hour))
	count, err = buf.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
