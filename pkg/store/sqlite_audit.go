package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bizdesk/pkg/model"
)

// SQLiteAudit is an append-only audit journal in a local SQLite file. It lets
// the audit trail outlive a memory store restart.
type SQLiteAudit struct {
	db *sql.DB
}

const auditSchema = `CREATE TABLE IF NOT EXISTS audit_entries(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	detail TEXT,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_entries(target);`

func OpenSQLiteAudit(ctx context.Context, path string) (*SQLiteAudit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return &SQLiteAudit{db: db}, nil
}

func (s *SQLiteAudit) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries(actor, action, target, detail, ts) VALUES(?,?,?,?,?)`,
		e.Actor, e.Action, e.Target, e.Detail, e.Timestamp.UnixNano())
	return err
}

func (s *SQLiteAudit) ListAudit(ctx context.Context, target string, limit int) ([]model.AuditEntry, error) {
	q := `SELECT id, actor, action, target, detail, ts FROM audit_entries`
	args := []interface{}{}
	if target != "" {
		q += ` WHERE target = ?`
		args = append(args, target)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, auditLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			detail sql.NullString
			ts     int64
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &detail, &ts); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		e.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteAudit) Close() error { return s.db.Close() }
