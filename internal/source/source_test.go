package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/speedwagon-io/soilwatch/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

func TestRecords(t *testing.T) {
	history := map[string]model.RawRecord{
		"-Nc": {"moisturePercent": float64(3)},
		"-Na": {"moisturePercent": float64(1)},
		"-Nb": {"moisturePercent": float64(2)},
		"-Nd": nil,
	}

	records := Records(history)

	require.Len(t, records, 3)
	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, records[i]["moisturePercent"])
	}
	assert.Empty(t, Records(nil))
}

func TestGuarded_OpensAfterConsecutiveFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := NewMockSource(ctrl)
	src.EXPECT().Name().Return("firebase").AnyTimes()
	src.EXPECT().History(gomock.Any()).Return(nil, errors.New("connection refused")).Times(2)

	g := NewGuarded(slogdiscard.NewDiscardLogger(), src, BreakerSettings{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := g.History(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	// The third call never reaches the mock.
	_, err := g.History(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestGuarded_PassesResultsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := NewMockSource(ctrl)
	src.EXPECT().Name().Return("rest").AnyTimes()
	src.EXPECT().History(gomock.Any()).Return(map[string]model.RawRecord{"a": {"x": 1}}, nil)
	src.EXPECT().Current(gomock.Any()).Return(nil, nil)

	g := NewGuarded(slogdiscard.NewDiscardLogger(), src, BreakerSettings{MaxFailures: 3, ResetTimeout: time.Second})

	history, err := g.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 1)

	current, err := g.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, "closed", g.State())
}
