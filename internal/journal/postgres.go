package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/amirphl/ml-trader/internal/risk"
)

// PostgresSink persists trades and events to Postgres. Each write is a single
// insert; duplicate deliveries produce duplicate rows, which downstream
// reporting deduplicates on (symbol, timestamp).
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens a connection and ensures the schema exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			pnl_percentage DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			id SERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			data JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades (symbol, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time);`)
	if err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) LogTrade(ctx context.Context, trade risk.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, side, size, entry_price, exit_price, pnl, pnl_percentage, reason, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		trade.Symbol, trade.Side.String(), trade.Size, trade.EntryPrice, trade.ExitPrice,
		trade.PnL, trade.PnLPercentage, trade.Reason, trade.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to log trade for %s: %w", trade.Symbol, err)
	}
	return nil
}

func (s *PostgresSink) LogEvent(ctx context.Context, event Event) error {
	data, _ := json.Marshal(event.Data)
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
		event.Time, event.Type, event.Description, data)
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

// GetEvents returns events of the given type within [start, end], oldest first.
func (s *PostgresSink) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time <= $3 ORDER BY time ASC`,
		eventType, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, err
		}
		json.Unmarshal(data, &e.Data)
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
