package query

import (
	"Go2NetGuard/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// CreateWindowReportsTable is the schema the ClickHouse report writer fills.
const CreateWindowReportsTable = `
CREATE TABLE IF NOT EXISTS window_reports (
    Timestamp           DateTime64(3),
    ReportID            String,
    Category            LowCardinality(String),
    Packets             UInt64,
    Bytes               UInt64,
    PPS                 UInt64,
    BPS                 UInt64,
    Attack              UInt8,
    Verdict             LowCardinality(String),
    Transition          LowCardinality(String),
    CooldownRemainingMs UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Category, Timestamp);
`

// MaxHistoryLimit caps how many rows one history query returns.
const MaxHistoryLimit = 1000

// HistoryRow is one stored category outcome.
type HistoryRow struct {
	Timestamp           time.Time `json:"timestamp"`
	ReportID            string    `json:"report_id"`
	Category            string    `json:"category"`
	Packets             uint64    `json:"packets"`
	Bytes               uint64    `json:"bytes"`
	PPS                 uint64    `json:"pps"`
	BPS                 uint64    `json:"bps"`
	Attack              bool      `json:"attack"`
	Verdict             string    `json:"verdict"`
	Transition          string    `json:"transition"`
	CooldownRemainingMs uint64    `json:"cooldown_remaining_ms"`
}

// HistoryRequest filters a history query.
type HistoryRequest struct {
	Category    string
	AttacksOnly bool
	Since       time.Time
	Limit       int
}

// Querier reads stored window reports.
type Querier interface {
	History(ctx context.Context, req HistoryRequest) ([]HistoryRow, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// buildHistoryQuery returns the SQL and arguments for req.
func buildHistoryQuery(req HistoryRequest) (string, []any) {
	var qb strings.Builder
	qb.WriteString(`
		SELECT Timestamp, ReportID, Category, Packets, Bytes, PPS, BPS,
		       Attack, Verdict, Transition, CooldownRemainingMs
		FROM window_reports`)

	var where []string
	var args []any
	if req.Category != "" {
		where = append(where, "Category = ?")
		args = append(args, req.Category)
	}
	if req.AttacksOnly {
		where = append(where, "Attack = 1")
	}
	if !req.Since.IsZero() {
		where = append(where, "Timestamp >= ?")
		args = append(args, req.Since)
	}
	if len(where) > 0 {
		qb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	limit := req.Limit
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	fmt.Fprintf(&qb, " ORDER BY Timestamp DESC LIMIT %d", limit)
	return qb.String(), args
}

// History returns the most recent stored outcomes, newest first.
func (q *clickhouseQuerier) History(ctx context.Context, req HistoryRequest) ([]HistoryRow, error) {
	sql, args := buildHistoryQuery(req)
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var (
			r      HistoryRow
			attack uint8
		)
		if err := rows.Scan(&r.Timestamp, &r.ReportID, &r.Category, &r.Packets, &r.Bytes, &r.PPS, &r.BPS,
			&attack, &r.Verdict, &r.Transition, &r.CooldownRemainingMs); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.Attack = attack == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return out, nil
}
