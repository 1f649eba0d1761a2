package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wire format of sensor timestamps. Both parsing and
// export go through it so a timestamp survives the round trip unchanged.
const TimestampLayout = "2006-01-02 15:04:05"

// Keys of a raw sensor record as written by the device.
const (
	FieldTimestamp   = "timestamp"
	FieldMoisture    = "moisturePercent"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldStatus      = "status"
	FieldPump        = "pump"
)

// RawRecord is one entry of the remote store, decoded from JSON without any
// structural guarantees.
type RawRecord map[string]any

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Timestamp returns the parsed timestamp field. ok is false when the field is
// missing, not a string, or does not match TimestampLayout.
func (r RawRecord) Timestamp() (time.Time, bool) {
	s, ok := r[FieldTimestamp].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Float returns the numeric value stored under key.
func (r RawRecord) Float(key string) (float64, bool) {
	v, exists := r[key]
	if !exists {
		return 0, false
	}
	return toFloat(v)
}

func (r RawRecord) OptionalFloat(key string) *float64 {
	f, ok := r.Float(key)
	if !ok {
		return nil
	}
	return &f
}

func (r RawRecord) String(key string) (string, bool) {
	v, exists := r[key]
	if !exists || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func (r RawRecord) OptionalString(key string) *string {
	s, ok := r.String(key)
	if !ok {
		return nil
	}
	return &s
}

func (r RawRecord) Pump() PumpState {
	v, exists := r[FieldPump]
	if !exists {
		return PumpUnknown
	}
	return toPump(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toPump(v any) PumpState {
	switch val := v.(type) {
	case bool:
		return pumpFromBool(val)
	case float64:
		return pumpFromBool(val != 0)
	case int:
		return pumpFromBool(val != 0)
	case int64:
		return pumpFromBool(val != 0)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return PumpUnknown
		}
		return pumpFromBool(f != 0)
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on", "1":
			return PumpOn
		case "false", "off", "0":
			return PumpOff
		}
	}
	return PumpUnknown
}

func pumpFromBool(on bool) PumpState {
	if on {
		return PumpOn
	}
	return PumpOff
}
