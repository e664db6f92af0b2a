package report

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/query"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

func init() {
	RegisterWriter("clickhouse", func(cfg *config.Config, def config.WriterDef) (model.Writer, error) {
		return NewClickHouseWriter(cfg.ClickHouse)
	})
}

// ClickHouseWriter inserts one row per active category per window.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and ensures the window_reports table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := query.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), query.CreateWindowReportsTable); err != nil {
		return nil, fmt.Errorf("failed to create window_reports table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured window_reports table exists.")

	return &ClickHouseWriter{conn: conn}, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

type windowRow struct {
	Timestamp         time.Time
	ReportID          string
	Category          string
	Packets           uint64
	Bytes             uint64
	PPS               uint64
	BPS               uint64
	Attack            uint8
	Verdict           string
	Transition        string
	CooldownRemaining uint64
}

// reportRows keeps categories that saw traffic or changed state.
func reportRows(report *model.WindowReport) []windowRow {
	var rows []windowRow
	for _, c := range report.Categories {
		if c.Packets == 0 && c.Transition == model.TransitionNone {
			continue
		}
		var attack uint8
		if c.Attack {
			attack = 1
		}
		rows = append(rows, windowRow{
			Timestamp:         report.Time,
			ReportID:          report.ID,
			Category:          c.Category.String(),
			Packets:           c.Packets,
			Bytes:             c.Bytes,
			PPS:               c.PPS,
			BPS:               c.BPS,
			Attack:            attack,
			Verdict:           c.Verdict.String(),
			Transition:        c.Transition.String(),
			CooldownRemaining: uint64(c.CooldownRemaining.Milliseconds()),
		})
	}
	return rows
}

func (w *ClickHouseWriter) Write(report *model.WindowReport) error {
	rows := reportRows(report)
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO window_reports")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range rows {
		err = batch.Append(r.Timestamp, r.ReportID, r.Category, r.Packets, r.Bytes, r.PPS, r.BPS,
			r.Attack, r.Verdict, r.Transition, r.CooldownRemaining)
		if err != nil {
			return fmt.Errorf("failed to append window row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
