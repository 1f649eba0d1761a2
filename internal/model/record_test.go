package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	const in = "2024-01-01 13:05:09"

	ts, err := ParseTimestamp(in)
	require.NoError(t, err)
	assert.Equal(t, in, FormatTimestamp(ts))
}

func TestRawRecordTimestamp(t *testing.T) {
	tests := []struct {
		name string
		rec  RawRecord
		ok   bool
	}{
		{name: "valid", rec: RawRecord{"timestamp": "2024-01-01 00:00:00"}, ok: true},
		{name: "padded", rec: RawRecord{"timestamp": " 2024-01-01 00:00:00 "}, ok: true},
		{name: "iso layout", rec: RawRecord{"timestamp": "2024-01-01T00:00:00Z"}, ok: false},
		{name: "garbage", rec: RawRecord{"timestamp": "yesterday"}, ok: false},
		{name: "number", rec: RawRecord{"timestamp": float64(1704067200)}, ok: false},
		{name: "missing", rec: RawRecord{}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.rec.Timestamp()
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestRawRecordFloat(t *testing.T) {
	rec := RawRecord{
		"f":      float64(41.5),
		"i":      7,
		"num":    json.Number("12.25"),
		"str":    "33",
		"bad":    "wet",
		"nil":    nil,
		"bool":   true,
		"nanstr": "NaN",
	}

	v, ok := rec.Float("f")
	assert.True(t, ok)
	assert.Equal(t, 41.5, v)

	v, ok = rec.Float("i")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	v, ok = rec.Float("num")
	assert.True(t, ok)
	assert.Equal(t, 12.25, v)

	v, ok = rec.Float("str")
	assert.True(t, ok)
	assert.Equal(t, 33.0, v)

	for _, key := range []string{"bad", "nil", "bool", "nanstr", "absent"} {
		_, ok := rec.Float(key)
		assert.False(t, ok, key)
	}

	assert.Nil(t, rec.OptionalFloat("absent"))
	require.NotNil(t, rec.OptionalFloat("f"))
}

func TestRawRecordPump(t *testing.T) {
	tests := []struct {
		value any
		want  PumpState
	}{
		{true, PumpOn},
		{false, PumpOff},
		{float64(1), PumpOn},
		{float64(0), PumpOff},
		{"ON", PumpOn},
		{"off", PumpOff},
		{"maybe", PumpUnknown},
		{nil, PumpUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RawRecord{"pump": tt.value}.Pump(), "%v", tt.value)
	}
	assert.Equal(t, PumpUnknown, RawRecord{}.Pump())
}

func TestCurrentDisplay(t *testing.T) {
	t.Run("missing fields render N/A", func(t *testing.T) {
		d := CurrentFromRecord(RawRecord{"moisturePercent": float64(38)}).Display()

		assert.Equal(t, "38%", d.Moisture)
		assert.Equal(t, "N/A°C", d.Temperature)
		assert.Equal(t, "N/A%", d.Humidity)
		assert.Equal(t, "N/A", d.Status)
		assert.Equal(t, "OFF", d.Pump)
		assert.Equal(t, "N/A", d.LastUpdate)
	})

	t.Run("nil record is absent", func(t *testing.T) {
		c := CurrentFromRecord(nil)
		assert.False(t, c.Present)
	})

	t.Run("full record", func(t *testing.T) {
		c := CurrentFromRecord(RawRecord{
			"timestamp":       "2024-01-01 00:02:00",
			"moisturePercent": float64(42),
			"temperature":     23.5,
			"humidity":        float64(61),
			"status":          "Wet",
			"pump":            true,
		})

		assert.True(t, c.Present)
		d := c.Display()
		assert.Equal(t, "23.5°C", d.Temperature)
		assert.Equal(t, "ON", d.Pump)
		assert.Equal(t, "Wet", d.Status)
		assert.Equal(t, "2024-01-01 00:02:00", d.LastUpdate)
	})
}

func TestAverageJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Average `json:"a"`
		B Average `json:"b"`
	}{A: AverageOf(21.5), B: Unavailable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":21.5,"b":null}`, string(data))

	var back struct {
		A Average `json:"a"`
		B Average `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, AverageOf(21.5), back.A)
	assert.False(t, back.B.Available)

	assert.Equal(t, "N/A", Unavailable.Format("°C"))
	assert.Equal(t, "21.50°C", AverageOf(21.5).Format("°C"))
}

func TestReportJSON(t *testing.T) {
	r := NewNoDataReport("dev-1", "Garden bed", Current{}, "No history data found")
	require.NotEmpty(t, r.ID)

	data, err := r.ToJSON()
	require.NoError(t, err)

	back, err := ReportFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, r.ID, back.ID)
	assert.True(t, back.NoData)
	assert.Nil(t, back.Metrics)
	assert.Equal(t, "No history data found", back.Notice)
}
