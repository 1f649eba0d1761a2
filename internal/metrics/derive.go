// Package metrics derives the dashboard statistics from a polled history.
package metrics

import (
	"errors"
	"sort"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

const DefaultRecentLimit = 20

// ErrNoData is returned when no history row survives validation.
var ErrNoData = errors.New("no history data")

type options struct {
	recentLimit int
}

type Option func(*options)

// WithRecentLimit sets how many of the newest rows go into the recent table.
func WithRecentLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recentLimit = n
		}
	}
}

// Derive computes the metrics for one refresh cycle. Rows without a valid
// timestamp or without a numeric moisturePercent are excluded and counted in
// Dropped. Identical input always yields identical output.
func Derive(raw []model.RawRecord, opts ...Option) (*model.Metrics, error) {
	o := options{recentLimit: DefaultRecentLimit}
	for _, opt := range opts {
		opt(&o)
	}

	readings, dropped := parse(raw)
	if len(readings) == 0 {
		return nil, ErrNoData
	}

	ascending := make([]model.Reading, len(readings))
	copy(ascending, readings)
	sort.SliceStable(ascending, func(i, j int) bool {
		return ascending[i].Timestamp.Before(ascending[j].Timestamp)
	})

	descending := make([]model.Reading, len(readings))
	copy(descending, readings)
	sort.SliceStable(descending, func(i, j int) bool {
		return descending[i].Timestamp.After(descending[j].Timestamp)
	})

	m := &model.Metrics{
		TotalReadings:      len(readings),
		StatusDistribution: make(map[string]int),
		PumpDistribution:   make(map[string]int),
		Dropped:            dropped,
		Readings:           descending,
	}

	m.AvgMoisture, m.MinMoisture, m.MaxMoisture = moistureStats(readings)
	m.AvgTemperature = average(readings, func(r model.Reading) *float64 { return r.Temperature })
	m.AvgHumidity = average(readings, func(r model.Reading) *float64 { return r.Humidity })
	m.PumpActivations = countActivations(ascending)

	for _, r := range readings {
		if r.Status != nil {
			m.StatusDistribution[*r.Status]++
		}
		if label := r.Pump.Label(); label != "" {
			m.PumpDistribution[label]++
		}
		if r.Pump == model.PumpOn {
			m.PumpOnReadings++
		}
	}
	m.PumpOnPercent = float64(m.PumpOnReadings) / float64(m.TotalReadings) * 100

	limit := min(o.recentLimit, len(descending))
	m.Recent = make([]model.TableRow, 0, limit)
	for _, r := range descending[:limit] {
		m.Recent = append(m.Recent, model.RowFromReading(r))
	}

	m.Trend = make([]model.TrendPoint, 0, len(ascending))
	for _, r := range ascending {
		m.Trend = append(m.Trend, model.TrendPoint{
			Timestamp:   r.Timestamp,
			Moisture:    r.Moisture,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
		})
	}

	return m, nil
}

func parse(raw []model.RawRecord) ([]model.Reading, model.Dropped) {
	var dropped model.Dropped
	readings := make([]model.Reading, 0, len(raw))

	for _, rec := range raw {
		ts, ok := rec.Timestamp()
		if !ok {
			dropped.InvalidTimestamp++
			continue
		}

		moisture, ok := rec.Float(model.FieldMoisture)
		if !ok {
			dropped.MissingMoisture++
			continue
		}

		readings = append(readings, model.Reading{
			Timestamp:   ts,
			Moisture:    moisture,
			Temperature: rec.OptionalFloat(model.FieldTemperature),
			Humidity:    rec.OptionalFloat(model.FieldHumidity),
			Status:      rec.OptionalString(model.FieldStatus),
			Pump:        rec.Pump(),
		})
	}

	return readings, dropped
}

func moistureStats(readings []model.Reading) (avg, lo, hi float64) {
	lo, hi = readings[0].Moisture, readings[0].Moisture
	var sum float64
	for _, r := range readings {
		sum += r.Moisture
		lo = min(lo, r.Moisture)
		hi = max(hi, r.Moisture)
	}
	return sum / float64(len(readings)), lo, hi
}

func average(readings []model.Reading, field func(model.Reading) *float64) model.Average {
	var (
		sum   float64
		count int
	)
	for _, r := range readings {
		if v := field(r); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return model.Unavailable
	}
	return model.AverageOf(sum / float64(count))
}

// countActivations counts OFF to ON changes between neighbouring rows of a
// chronologically sorted slice. The time gap between the rows is irrelevant.
func countActivations(ascending []model.Reading) int {
	var n int
	for i := 1; i < len(ascending); i++ {
		if ascending[i-1].Pump == model.PumpOff && ascending[i].Pump == model.PumpOn {
			n++
		}
	}
	return n
}
