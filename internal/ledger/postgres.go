package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/models"

	_ "github.com/lib/pq"
)

// PostgresLedger persists the ledger in PostgreSQL.
type PostgresLedger struct {
	db *sql.DB

	mu     sync.Mutex
	cumPnL map[string]float64 // botID -> last cumulative pnl, lazily seeded
}

// NewPostgresLedger connects, pings and runs the migrations.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	l := &PostgresLedger{db: db, cumPnL: make(map[string]float64)}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return l, nil
}

func (l *PostgresLedger) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			bot_id VARCHAR(40) NOT NULL,
			profile VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			spent_usdt DECIMAL(20, 8) NOT NULL DEFAULT 0,
			received_usdt DECIMAL(20, 8) NOT NULL DEFAULT 0,
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			cumulative_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			exit_reason VARCHAR(20),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS adaptive_events (
			id BIGSERIAL PRIMARY KEY,
			bot_id VARCHAR(40) NOT NULL,
			profile VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			from_state VARCHAR(30) NOT NULL,
			to_state VARCHAR(30) NOT NULL,
			reason TEXT,
			metrics JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id BIGSERIAL PRIMARY KEY,
			bot_id VARCHAR(40) NOT NULL,
			profile VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			decision VARCHAR(20) NOT NULL,
			regime VARCHAR(30),
			confidence NUMERIC(4, 2),
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_bot_id ON trades(bot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_bot_side ON trades(bot_id, side)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_adaptive_events_bot_id ON adaptive_events(bot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_bot_id ON decisions(bot_id)`,
	}
	for _, migration := range migrations {
		if _, err := l.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordTrade appends a fill. The cumulative pnl stamped on the record is the
// bot's running sum, seeded from the table on the first write after startup.
func (l *PostgresLedger) RecordTrade(rec *models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cum, ok := l.cumPnL[rec.BotID]
	if !ok {
		row := l.db.QueryRow(
			`SELECT cumulative_pnl FROM trades WHERE bot_id = $1 ORDER BY id DESC LIMIT 1`,
			rec.BotID,
		)
		if err := row.Scan(&cum); err != nil {
			if err != sql.ErrNoRows {
				return fmt.Errorf("failed to seed cumulative pnl: %w", err)
			}
			cum = 0
		}
	}
	cum += rec.PnL
	rec.CumulativePnL = cum

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := l.db.Exec(
		`INSERT INTO trades
			(bot_id, profile, symbol, side, price, quantity, spent_usdt, received_usdt, pnl, cumulative_pnl, exit_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.BotID, rec.Profile, rec.Symbol, string(rec.Side),
		rec.Price, rec.Qty, rec.SpentUSDT, rec.ReceivedUSDT,
		rec.PnL, rec.CumulativePnL, nullableString(rec.ExitReason), rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	l.cumPnL[rec.BotID] = cum
	return nil
}

// RecentTrades returns the bot's last trades oldest-first. Sides other than
// empty string restrict the window to that side only.
func (l *PostgresLedger) RecentTrades(botID string, limit int, side models.Side) ([]models.TradeRecord, error) {
	query := `
		SELECT bot_id, profile, symbol, side, price, quantity, spent_usdt, received_usdt,
		       pnl, cumulative_pnl, COALESCE(exit_reason, ''), created_at
		FROM trades
		WHERE bot_id = $1`
	args := []interface{}{botID}
	if side != "" {
		query += ` AND side = $2 ORDER BY id DESC LIMIT $3`
		args = append(args, string(side), limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var sideStr string
		if err := rows.Scan(
			&t.BotID, &t.Profile, &t.Symbol, &sideStr,
			&t.Price, &t.Qty, &t.SpentUSDT, &t.ReceivedUSDT,
			&t.PnL, &t.CumulativePnL, &t.ExitReason, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		t.Side = models.Side(sideStr)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query is newest-first so LIMIT takes the tail; callers want
	// chronological order.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

func (l *PostgresLedger) RecordAdaptiveEvent(botID, profile, symbol string, from, to models.AdaptiveState, reason string, m adaptive.Metrics) error {
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO adaptive_events (bot_id, profile, symbol, from_state, to_state, reason, metrics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		botID, profile, symbol, string(from), string(to), reason, metricsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert adaptive event: %w", err)
	}
	return nil
}

func (l *PostgresLedger) RecordDecision(botID, profile, symbol, decision, regime string, confidence float64, reason string) error {
	_, err := l.db.Exec(
		`INSERT INTO decisions (bot_id, profile, symbol, decision, regime, confidence, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		botID, profile, symbol, decision, nullableString(regime), confidence, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
