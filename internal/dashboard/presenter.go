package dashboard

import (
	"context"
	"log/slog"

	"github.com/speedwagon-io/soilwatch/internal/model"
)

//go:generate mockgen -destination=mock_presenter.go -package=dashboard github.com/speedwagon-io/soilwatch/internal/dashboard Presenter

// Presenter is a surface that receives every report the refresh loop
// produces. Present must not modify the report.
type Presenter interface {
	Name() string
	Present(ctx context.Context, report *model.Report) error
	Close() error
}

// LogPresenter writes a one-line summary of each report to the log.
type LogPresenter struct {
	log *slog.Logger
}

func NewLogPresenter(log *slog.Logger) *LogPresenter {
	return &LogPresenter{log: log}
}

func (p *LogPresenter) Name() string {
	return "log"
}

func (p *LogPresenter) Present(_ context.Context, report *model.Report) error {
	current := report.Current.Display()

	if report.NoData || report.Metrics == nil {
		p.log.Info("dashboard",
			slog.String("device_id", report.DeviceID),
			slog.String("notice", report.Notice),
			slog.String("moisture", current.Moisture),
			slog.String("pump", current.Pump),
		)
		return nil
	}

	summary := report.Metrics.Summary()
	p.log.Info("dashboard",
		slog.String("device_id", report.DeviceID),
		slog.String("moisture", current.Moisture),
		slog.String("pump", current.Pump),
		slog.String("avg_moisture", summary.AvgMoisture),
		slog.String("avg_temperature", summary.AvgTemperature),
		slog.String("avg_humidity", summary.AvgHumidity),
		slog.Int("pump_activations", summary.PumpActivations),
		slog.String("pump_on_time", summary.PumpOnTime),
		slog.Int("total_readings", summary.TotalReadings),
	)
	return nil
}

func (p *LogPresenter) Close() error {
	return nil
}
