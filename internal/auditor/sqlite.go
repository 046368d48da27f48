package auditor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/ChrisB0-2/watch-sage/internal/core"
)

// SQLiteAuditor persists scan history to a SQLite database, giving
// a queryable record of which paths were watched over time in a
// single backup-friendly file.
type SQLiteAuditor struct {
	db *sql.DB
	mu sync.Mutex
}

// ScanRecord is a single persisted audit row.
type ScanRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Path      string    `json:"path,omitempty"`
	Device    string    `json:"device,omitempty"`
	Inode     int64     `json:"inode,omitempty"`
	IsDir     bool      `json:"is_dir,omitempty"`
	Error     string    `json:"error,omitempty"`
	Fields    string    `json:"fields,omitempty"` // JSON-encoded extra fields
}

// NewSQLite opens (creating if needed) the audit database at path.
func NewSQLite(path string) (*SQLiteAuditor, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteAuditor{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		path TEXT,
		device TEXT,
		inode INTEGER,
		is_dir INTEGER,
		error TEXT,
		fields TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_scan_timestamp ON scan_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_scan_action ON scan_log(action);
	CREATE INDEX IF NOT EXISTS idx_scan_path ON scan_log(path);
	`

	_, err := db.Exec(schema)
	return err
}

// Record persists an audit event to the database.
func (a *SQLiteAuditor) Record(ctx context.Context, evt core.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	var device string
	var inode int64
	var isDir bool
	var errStr string

	if evt.Err != nil {
		errStr = evt.Err.Error()
	}

	if evt.Fields != nil {
		if v, ok := evt.Fields["device"].(string); ok {
			device = v
		}
		if v, ok := evt.Fields["inode"].(uint64); ok {
			inode = int64(v)
		}
		if v, ok := evt.Fields["is_dir"].(bool); ok {
			isDir = v
		}
	}

	fieldsJSON := ""
	if len(evt.Fields) > 0 {
		if b, err := json.Marshal(evt.Fields); err == nil {
			fieldsJSON = string(b)
		}
	}

	// Audit is fail-open; a write error must not break the scan.
	_, _ = a.db.ExecContext(ctx, `
		INSERT INTO scan_log (timestamp, action, path, device, inode, is_dir, error, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.Time.UTC().Format(time.RFC3339Nano),
		evt.Action,
		evt.Path,
		device,
		inode,
		isDir,
		errStr,
		fieldsJSON,
	)
}

// QueryFilter specifies filters for querying scan records.
type QueryFilter struct {
	Since  time.Time
	Until  time.Time
	Action string // scan, match, collect
	Path   string // partial match
	Limit  int
}

// Query retrieves scan records matching the given filters, newest first.
func (a *SQLiteAuditor) Query(ctx context.Context, filter QueryFilter) ([]ScanRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	query := `SELECT id, timestamp, action, path, device, inode, is_dir, error, fields FROM scan_log WHERE 1=1`
	args := []interface{}{}

	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.Path != "" {
		query += " AND path LIKE ?"
		args = append(args, "%"+filter.Path+"%")
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan log: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var ts string
		var path, device, errStr, fields sql.NullString
		var inode sql.NullInt64
		var isDir sql.NullBool

		err := rows.Scan(&r.ID, &ts, &r.Action, &path, &device, &inode, &isDir, &errStr, &fields)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.Path = path.String
		r.Device = device.String
		r.Inode = inode.Int64
		r.IsDir = isDir.Bool
		r.Error = errStr.String
		r.Fields = fields.String

		records = append(records, r)
	}

	return records, rows.Err()
}

// Prune removes records older than the given age and reports how many
// rows were deleted.
func (a *SQLiteAuditor) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	result, err := a.db.ExecContext(ctx, "DELETE FROM scan_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Close closes the database connection.
func (a *SQLiteAuditor) Close() error {
	return a.db.Close()
}

// Ensure SQLiteAuditor implements core.Auditor
var _ core.Auditor = (*SQLiteAuditor)(nil)
