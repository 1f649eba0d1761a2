package buffer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Buffer keeps reports that could not be forwarded until the collector is
// reachable again.
type Buffer interface {
	Store(ctx context.Context, report *model.Report) error
	GetPending(ctx context.Context, limit int) ([]*model.Report, error)
	MarkSent(ctx context.Context, ids []string) error
	Cleanup(ctx context.Context, maxAge time.Duration) error
	Close() error
}

type SQLiteBuffer struct {
	log *slog.Logger
	db  *sql.DB
}

func NewSQLiteBuffer(log *slog.Logger, dbPath string) (*SQLiteBuffer, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	buf := &SQLiteBuffer{
		log: log.With(slog.String("component", "buffer")),
		db:  db,
	}

	if err := buf.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return buf, nil
}

func (b *SQLiteBuffer) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS reports (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			device_id TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			no_data INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`
	_, err := b.db.Exec(query)
	return err
}

// Store saves the report. Storing the same report twice is a no-op.
func (b *SQLiteBuffer) Store(ctx context.Context, report *model.Report) error {
	payload, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO reports (id, device_id, generated_at, no_data, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		report.ID,
		report.DeviceID,
		report.GeneratedAt.UTC().Format(timeLayout),
		report.NoData,
		string(payload),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	b.log.Debug("report stored in buffer", slog.String("id", report.ID))
	return nil
}

// GetPending returns up to limit buffered reports, oldest first.
func (b *SQLiteBuffer) GetPending(ctx context.Context, limit int) ([]*model.Report, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT id, payload FROM reports ORDER BY seq ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			b.log.Error("failed to scan row", sl.Err(err))
			continue
		}

		report, err := model.ReportFromJSON([]byte(payload))
		if err != nil {
			b.log.Error("failed to unmarshal report", slog.String("id", id), sl.Err(err))
			continue
		}

		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// MarkSent removes delivered reports from the buffer.
func (b *SQLiteBuffer) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM reports WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete report %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	b.log.Debug("marked reports as sent", slog.Int("count", len(ids)))
	return nil
}

// Cleanup drops reports buffered longer than maxAge ago.
func (b *SQLiteBuffer) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := b.db.ExecContext(ctx, "DELETE FROM reports WHERE created_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old reports: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		b.log.Info("cleaned up old buffer entries", slog.Int64("deleted", deleted))
	}

	return nil
}

func (b *SQLiteBuffer) Close() error {
	return b.db.Close()
}

func (b *SQLiteBuffer) Count(ctx context.Context) (int64, error) {
	var count int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count)
	return count, err
}
