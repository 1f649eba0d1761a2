package model

import (
	"encoding/json"
	"strconv"
	"time"
)

const NotAvailable = "N/A"

// PumpState is the pump flag of a reading. PumpUnknown covers rows where the
// device did not report a usable value.
type PumpState int

const (
	PumpUnknown PumpState = iota
	PumpOff
	PumpOn
)

const (
	PumpLabelOn  = "ON"
	PumpLabelOff = "OFF"
)

// Label renders the state as ON/OFF, empty for unknown.
func (p PumpState) Label() string {
	switch p {
	case PumpOn:
		return PumpLabelOn
	case PumpOff:
		return PumpLabelOff
	default:
		return ""
	}
}

func (p PumpState) MarshalJSON() ([]byte, error) {
	switch p {
	case PumpOn:
		return []byte("true"), nil
	case PumpOff:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (p *PumpState) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*p = PumpUnknown
	case *v:
		*p = PumpOn
	default:
		*p = PumpOff
	}
	return nil
}

// Reading is one history row that passed validation.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Moisture    float64   `json:"moisture_percent"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Pump        PumpState `json:"pump"`
}

// Current is the latest known device state. Any field may be missing.
type Current struct {
	Present     bool      `json:"present"`
	Timestamp   *string   `json:"timestamp,omitempty"`
	Moisture    *float64  `json:"moisture_percent,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Pump        PumpState `json:"pump"`
}

// CurrentFromRecord converts the raw current snapshot. A nil record yields a
// snapshot with Present set to false.
func CurrentFromRecord(r RawRecord) Current {
	if r == nil {
		return Current{}
	}
	return Current{
		Present:     true,
		Timestamp:   r.OptionalString(FieldTimestamp),
		Moisture:    r.OptionalFloat(FieldMoisture),
		Temperature: r.OptionalFloat(FieldTemperature),
		Humidity:    r.OptionalFloat(FieldHumidity),
		Status:      r.OptionalString(FieldStatus),
		Pump:        r.Pump(),
	}
}

// CurrentDisplay is Current rendered for people.
type CurrentDisplay struct {
	Moisture    string `json:"moisture"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Status      string `json:"status"`
	Pump        string `json:"pump"`
	LastUpdate  string `json:"last_update"`
}

func (c Current) Display() CurrentDisplay {
	pump := PumpLabelOff
	if c.Pump == PumpOn {
		pump = PumpLabelOn
	}
	return CurrentDisplay{
		Moisture:    displayNumber(c.Moisture) + "%",
		Temperature: displayNumber(c.Temperature) + "°C",
		Humidity:    displayNumber(c.Humidity) + "%",
		Status:      displayString(c.Status),
		Pump:        pump,
		LastUpdate:  displayString(c.Timestamp),
	}
}

func displayNumber(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func displayString(v *string) string {
	if v == nil {
		return NotAvailable
	}
	return *v
}
