package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/dashboard"
	"github.com/speedwagon-io/soilwatch/internal/export"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
)

// Uploader stores one object in a bucket.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Name() string
}

// Archiver periodically uploads the CSV export of the latest report.
type Archiver struct {
	log      *slog.Logger
	state    *dashboard.State
	uploader Uploader
	prefix   string
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastReportID string
}

func NewArchiver(log *slog.Logger, state *dashboard.State, uploader Uploader, prefix string, interval time.Duration) *Archiver {
	return &Archiver{
		log:      log.With(slog.String("component", "archive"), slog.String("backend", uploader.Name())),
		state:    state,
		uploader: uploader,
		prefix:   prefix,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs until ctx is cancelled, archiving once per interval.
func (a *Archiver) Start(ctx context.Context) {
	a.log.Info("starting archiver", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c, ok := a.uploader.(io.Closer); ok {
				if err := c.Close(); err != nil {
					a.log.Error("failed to close uploader", sl.Err(err))
				}
			}
			return
		case <-ticker.C:
			name, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.log.Error("failed to archive export", sl.Err(err))
				continue
			}
			if name != "" {
				a.log.Info("export archived", slog.String("object", name))
			}
		}
	}
}

// ArchiveOnce uploads the latest report's export and returns the object
// name. It returns an empty name without error when there is nothing new to
// archive.
func (a *Archiver) ArchiveOnce(ctx context.Context) (string, error) {
	report, err := a.state.Latest()
	if err != nil {
		return "", nil
	}
	if report.Metrics == nil || len(report.Metrics.Readings) == 0 {
		return "", nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if report.ID == a.lastReportID {
		return "", nil
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, report.Metrics.Readings); err != nil {
		return "", fmt.Errorf("failed to render export: %w", err)
	}

	name := path.Join(a.prefix, report.DeviceID, export.FileName(a.now()))
	if err := a.uploader.Upload(ctx, name, &buf, int64(buf.Len()), export.ContentType); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	a.lastReportID = report.ID
	return name, nil
}
