package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Average is a mean that may not exist. Available is false when no row
// carried the column at all, which is distinct from a computed zero.
type Average struct {
	Value     float64
	Available bool
}

func AverageOf(v float64) Average {
	return Average{Value: v, Available: true}
}

// Unavailable is the sentinel for a column with no data to average.
var Unavailable = Average{}

func (a Average) MarshalJSON() ([]byte, error) {
	if !a.Available {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

func (a *Average) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*a = Unavailable
		return nil
	}
	*a = AverageOf(*v)
	return nil
}

// Format renders the value with two decimals followed by unit, or N/A.
func (a Average) Format(unit string) string {
	if !a.Available {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f%s", a.Value, unit)
}

// TableRow is a reading as shown in the recent history table.
type TableRow struct {
	Timestamp   string   `json:"timestamp"`
	Moisture    float64  `json:"moisture_percent"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Status      string   `json:"status"`
	Pump        string   `json:"pump"`
}

func RowFromReading(r Reading) TableRow {
	row := TableRow{
		Timestamp:   FormatTimestamp(r.Timestamp),
		Moisture:    r.Moisture,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pump:        r.Pump.Label(),
	}
	if r.Status != nil {
		row.Status = *r.Status
	}
	return row
}

type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Moisture    float64   `json:"moisture_percent"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
}

// Dropped counts history rows excluded from the working set.
type Dropped struct {
	InvalidTimestamp int `json:"invalid_timestamp"`
	MissingMoisture  int `json:"missing_moisture"`
}

func (d Dropped) Total() int {
	return d.InvalidTimestamp + d.MissingMoisture
}

// Metrics is the result of one derivation pass over the history.
type Metrics struct {
	TotalReadings int `json:"total_readings"`

	AvgMoisture float64 `json:"avg_moisture"`
	MinMoisture float64 `json:"min_moisture"`
	MaxMoisture float64 `json:"max_moisture"`

	AvgTemperature Average `json:"avg_temperature"`
	AvgHumidity    Average `json:"avg_humidity"`

	PumpActivations int     `json:"pump_activations"`
	PumpOnReadings  int     `json:"pump_on_readings"`
	PumpOnPercent   float64 `json:"pump_on_percent"`

	StatusDistribution map[string]int `json:"status_distribution"`
	PumpDistribution   map[string]int `json:"pump_distribution"`

	Recent  []TableRow   `json:"recent"`
	Trend   []TrendPoint `json:"trend"`
	Dropped Dropped      `json:"dropped"`

	// Readings is the full working set, newest first. It backs the export.
	Readings []Reading `json:"-"`
}

// Summary is the headline numbers formatted the way the dashboard shows them.
type Summary struct {
	AvgMoisture     string `json:"avg_moisture"`
	AvgTemperature  string `json:"avg_temperature"`
	AvgHumidity     string `json:"avg_humidity"`
	MaxMoisture     string `json:"max_moisture"`
	PumpActivations int    `json:"pump_activations"`
	PumpOnTime      string `json:"pump_on_time"`
	TotalReadings   int    `json:"total_readings"`
}

func (m *Metrics) Summary() Summary {
	return Summary{
		AvgMoisture:     fmt.Sprintf("%.2f%%", m.AvgMoisture),
		AvgTemperature:  m.AvgTemperature.Format("°C"),
		AvgHumidity:     m.AvgHumidity.Format("%"),
		MaxMoisture:     fmt.Sprintf("%g%%", m.MaxMoisture),
		PumpActivations: m.PumpActivations,
		PumpOnTime:      fmt.Sprintf("%.1f%%", m.PumpOnPercent),
		TotalReadings:   m.TotalReadings,
	}
}
