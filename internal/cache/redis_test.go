package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/soilwatch/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

func TestRedis_PresentAndLatest(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(slogdiscard.NewDiscardLogger(), db, "soilwatch", time.Hour)

	report := model.NewReport("field-1", "North field", model.Current{}, &model.Metrics{
		TotalReadings:  3,
		AvgMoisture:    42.5,
		AvgTemperature: model.AverageOf(21),
	})
	data, err := report.ToJSON()
	require.NoError(t, err)

	mock.ExpectSet("soilwatch:latest:field-1", data, time.Hour).SetVal("OK")
	mock.ExpectGet("soilwatch:latest:field-1").SetVal(string(data))

	require.NoError(t, c.Present(context.Background(), report))

	cached, err := c.Latest(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, report.ID, cached.ID)
	assert.Equal(t, 42.5, cached.Metrics.AvgMoisture)
	assert.Equal(t, model.AverageOf(21), cached.Metrics.AvgTemperature)
	assert.False(t, cached.Metrics.AvgHumidity.Available)
	assert.Nil(t, cached.Metrics.Readings)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "redis", c.Name())
}

func TestRedis_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(slogdiscard.NewDiscardLogger(), db, "soilwatch", time.Hour)

	mock.ExpectGet("soilwatch:latest:field-1").RedisNil()
	mock.ExpectGet("soilwatch:latest:field-2").SetErr(errors.New("connection reset"))
	mock.ExpectGet("soilwatch:latest:field-3").SetVal("{not json")

	_, err := c.Latest(context.Background(), "field-1")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = c.Latest(context.Background(), "field-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	_, err = c.Latest(context.Background(), "field-3")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_PresentError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(slogdiscard.NewDiscardLogger(), db, "sw", time.Minute)

	report := model.NewNoDataReport("d", "D", model.Current{}, "history unavailable")
	data, err := report.ToJSON()
	require.NoError(t, err)

	mock.ExpectSet("sw:latest:d", data, time.Minute).SetErr(errors.New("READONLY"))

	err = c.Present(context.Background(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
}
