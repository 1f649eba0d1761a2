package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/buffer"
	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/metrics"
	"github.com/speedwagon-io/soilwatch/internal/model"
	"github.com/speedwagon-io/soilwatch/internal/sender"
	"github.com/speedwagon-io/soilwatch/internal/source"
)

const (
	NoticeNoHistory          = "No history data found"
	NoticeHistoryUnavailable = "history unavailable"

	bufferBatchSize = 100
)

// Manager runs the refresh loop: fetch, derive, present, forward.
type Manager struct {
	log        *slog.Logger
	cfg        *config.Config
	sourceCfg  *config.SourceConfig
	source     source.Source
	sender     sender.Sender
	buffer     buffer.Buffer
	state      *State
	presenters []Presenter
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewManager wires the loop. snd and buf may be nil when forwarding or
// buffering is disabled.
func NewManager(
	log *slog.Logger,
	cfg *config.Config,
	sourceCfg *config.SourceConfig,
	src source.Source,
	snd sender.Sender,
	buf buffer.Buffer,
	state *State,
	presenters ...Presenter,
) *Manager {
	return &Manager{
		log:        log.With(slog.String("component", "manager")),
		cfg:        cfg,
		sourceCfg:  sourceCfg,
		source:     src,
		sender:     snd,
		buffer:     buf,
		state:      state,
		presenters: presenters,
		stopCh:     make(chan struct{}),
	}
}

// Start runs one cycle immediately and then one cycle per polling interval,
// measured from the end of the previous cycle. It blocks until ctx is
// cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.log.Info("starting dashboard manager",
		slog.String("device_id", m.cfg.Device.ID),
		slog.String("source", m.source.Name()),
		slog.Duration("interval", m.sourceCfg.Polling.Interval),
	)

	if m.bufferEnabled() {
		m.wg.Add(1)
		go m.retryBufferedReports(ctx)
	}

	m.RunCycle(ctx)

	timer := time.NewTimer(m.sourceCfg.Polling.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("context cancelled, stopping manager")
			return
		case <-m.stopCh:
			m.log.Info("stop signal received, stopping manager")
			return
		case <-timer.C:
			m.RunCycle(ctx)
			timer.Reset(m.sourceCfg.Polling.Interval)
		}
	}
}

// Stop ends the loop, waits for background work and closes the source and
// every presenter. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()

		if err := m.source.Close(); err != nil {
			m.log.Error("failed to close source", sl.Err(err))
		}
		for _, p := range m.presenters {
			if err := p.Close(); err != nil {
				m.log.Error("failed to close presenter", slog.String("presenter", p.Name()), sl.Err(err))
			}
		}
	})
}

// RunCycle performs a single refresh and returns the report it produced.
func (m *Manager) RunCycle(ctx context.Context) *model.Report {
	report := m.buildReport(ctx)

	m.state.Set(report)

	for _, p := range m.presenters {
		if err := p.Present(ctx, report); err != nil {
			m.log.Error("failed to present report",
				slog.String("presenter", p.Name()),
				slog.String("report_id", report.ID),
				sl.Err(err),
			)
		}
	}

	m.forward(ctx, report)

	return report
}

func (m *Manager) buildReport(ctx context.Context) *model.Report {
	deviceID, deviceName := m.cfg.Device.ID, m.cfg.Device.Name

	history, histErr := m.fetchHistory(ctx)
	if histErr != nil {
		m.log.Error("failed to fetch history", sl.Err(histErr))
	}

	current := m.fetchCurrent(ctx)

	if histErr != nil {
		return model.NewNoDataReport(deviceID, deviceName, current, NoticeHistoryUnavailable)
	}

	result, err := metrics.Derive(source.Records(history), metrics.WithRecentLimit(m.sourceCfg.Dashboard.RecentLimit))
	if err != nil {
		if !errors.Is(err, metrics.ErrNoData) {
			m.log.Error("failed to derive metrics", sl.Err(err))
		}
		m.log.Info("no usable history", slog.Int("records", len(history)))
		return model.NewNoDataReport(deviceID, deviceName, current, NoticeNoHistory)
	}

	if dropped := result.Dropped.Total(); dropped > 0 {
		m.log.Warn("history rows dropped",
			slog.Int("invalid_timestamp", result.Dropped.InvalidTimestamp),
			slog.Int("missing_moisture", result.Dropped.MissingMoisture),
		)
	}

	return model.NewReport(deviceID, deviceName, current, result)
}

func (m *Manager) fetchHistory(ctx context.Context) (map[string]model.RawRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.sourceCfg.Polling.Timeout)
	defer cancel()
	return m.source.History(fetchCtx)
}

func (m *Manager) fetchCurrent(ctx context.Context) model.Current {
	fetchCtx, cancel := context.WithTimeout(ctx, m.sourceCfg.Polling.Timeout)
	defer cancel()

	rec, err := m.source.Current(fetchCtx)
	if err != nil {
		m.log.Error("failed to fetch current snapshot", sl.Err(err))
		return model.Current{}
	}
	return model.CurrentFromRecord(rec)
}

func (m *Manager) forward(ctx context.Context, report *model.Report) {
	if m.sender == nil {
		return
	}

	if err := m.sender.Send(ctx, report); err != nil {
		m.log.Error("failed to send report",
			slog.String("report_id", report.ID),
			sl.Err(err),
		)

		if m.bufferEnabled() {
			if bufErr := m.buffer.Store(ctx, report); bufErr != nil {
				m.log.Error("failed to buffer report",
					slog.String("report_id", report.ID),
					sl.Err(bufErr),
				)
			} else {
				m.log.Info("report buffered for later retry",
					slog.String("report_id", report.ID),
				)
			}
		}
		return
	}

	m.log.Debug("report sent successfully", slog.String("report_id", report.ID))
}

func (m *Manager) bufferEnabled() bool {
	return m.cfg.Buffer.Enabled && m.buffer != nil && m.sender != nil
}

func (m *Manager) retryBufferedReports(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.Buffer.RetryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.ProcessBuffered(ctx)
		}
	}
}

// ProcessBuffered resends buffered reports oldest first as a single batch.
// Nothing is marked sent unless the whole batch is accepted.
func (m *Manager) ProcessBuffered(ctx context.Context) {
	pending, err := m.buffer.GetPending(ctx, bufferBatchSize)
	if err != nil {
		m.log.Error("failed to get pending reports from buffer", sl.Err(err))
		return
	}

	if len(pending) > 0 {
		m.log.Info("processing buffered reports", slog.Int("count", len(pending)))

		if err := m.sender.SendBatch(ctx, pending); err != nil {
			m.log.Debug("failed to send buffered reports",
				slog.Int("count", len(pending)),
				sl.Err(err),
			)
		} else {
			ids := make([]string, 0, len(pending))
			for _, report := range pending {
				ids = append(ids, report.ID)
			}
			if err := m.buffer.MarkSent(ctx, ids); err != nil {
				m.log.Error("failed to mark buffered reports as sent", sl.Err(err))
			} else {
				m.log.Info("buffered reports sent successfully", slog.Int("count", len(ids)))
			}
		}
	}

	if err := m.buffer.Cleanup(ctx, m.cfg.Buffer.MaxAge); err != nil {
		m.log.Error("failed to cleanup old buffer entries", sl.Err(err))
	}
}
