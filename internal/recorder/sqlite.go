package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"StageSentinel/internal/model"
)

// SQLiteStore persists alerts to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboard readers do not block the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite alert store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT NOT NULL,
			rsi             REAL,
			stage_label     TEXT NOT NULL,
			message         TEXT,
			quantity        INTEGER,
			budget          REAL,
			price           REAL,
			idempotency_key TEXT,
			created_at      INTEGER NOT NULL,
			sent            INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_label_created ON alerts(stage_label, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_idem ON alerts(idempotency_key)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *a
	stored.Sent = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	var key any
	if stored.IdempotencyKey != "" {
		key = stored.IdempotencyKey
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO alerts
		(symbol, rsi, stage_label, message, quantity, budget, price, idempotency_key, created_at, sent)
		VALUES (?,?,?,?,?,?,?,?,?,0)`,
		stored.Symbol, stored.RSI, stored.StageLabel, stored.Message,
		stored.Quantity, stored.Budget, stored.Price, key, stored.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert alert id: %w", err)
	}
	stored.ID = id
	return &stored, nil
}

func (s *SQLiteStore) FindRecent(ctx context.Context, f Filter) ([]model.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.StageLabel != "" {
		where = append(where, "stage_label = ?")
		args = append(args, f.StageLabel)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.UnsentOnly {
		where = append(where, "sent = 0")
	}

	q := `SELECT id, symbol, rsi, stage_label, message, quantity, budget, price,
		COALESCE(idempotency_key, ''), created_at, sent FROM alerts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var (
			a       model.Alert
			created int64
			sent    int
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &a.RSI, &a.StageLabel, &a.Message,
			&a.Quantity, &a.Budget, &a.Price, &a.IdempotencyKey, &created, &sent); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created)
		a.Sent = sent != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark sent: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, "UPDATE alerts SET sent = 1 WHERE id IN ("+placeholders+")", args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("mark sent: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite alert store")
	return s.db.Close()
}
