package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

const ContentType = "text/csv"

var Header = []string{"Timestamp", "Moisture %", "Temp (°C)", "Humidity (%)", "Status", "Pump"}

// WriteCSV writes readings in the given order, one row each, after Header.
func WriteCSV(w io.Writer, readings []model.Reading) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range readings {
		status := ""
		if r.Status != nil {
			status = *r.Status
		}

		record := []string{
			model.FormatTimestamp(r.Timestamp),
			formatFloat(r.Moisture),
			formatOptional(r.Temperature),
			formatOptional(r.Humidity),
			status,
			r.Pump.Label(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName is the download name of an export taken at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("soil_moisture_data_%s.csv", t.Format("20060102_150405"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
