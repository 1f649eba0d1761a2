package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Report is what one refresh cycle hands to the presentation surfaces.
// Exactly one of Metrics and NoData is set.
type Report struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	GeneratedAt time.Time `json:"generated_at"`
	Current     Current   `json:"current"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
	NoData      bool      `json:"no_data"`
	Notice      string    `json:"notice,omitempty"`
}

func NewReport(deviceID, deviceName string, current Current, metrics *Metrics) *Report {
	return &Report{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		GeneratedAt: time.Now().UTC(),
		Current:     current,
		Metrics:     metrics,
	}
}

// NewNoDataReport builds the report for a cycle without usable history.
func NewNoDataReport(deviceID, deviceName string, current Current, notice string) *Report {
	r := NewReport(deviceID, deviceName, current, nil)
	r.NoData = true
	r.Notice = notice
	return r
}

func (r *Report) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func ReportFromJSON(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
