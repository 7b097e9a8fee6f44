// Package audit stores the valve's command and fault history in the
// audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	sourceSystem = "system"

	// Fixed width keeps created_at sortable as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// AuditLog is one audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	DeviceID  string    `json:"device_id"`
	Role      string    `json:"role,omitempty"`
	Value     string    `json:"value,omitempty"`
	Source    string    `json:"source"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects audit logs. Zero values match everything.
type Filter struct {
	Action string // command_accepted, command_rejected, write_confirmed, appliance_error
	Role   string
	Limit  int // default 50, max 200
	Offset int
}

// ListResult is one page of audit logs, newest first.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps audit logs in SQLite. It also records session
// events for one device, see Record.
type SQLiteRepository struct {
	db       *sql.DB
	deviceID string
}

// NewSQLiteRepository creates a repository writing entries for deviceID.
func NewSQLiteRepository(db *sql.DB, deviceID string) *SQLiteRepository {
	return &SQLiteRepository{db: db, deviceID: deviceID}
}

// Record stores a session event.
func (r *SQLiteRepository) Record(ctx context.Context, ev etrv.Event) error {
	return r.Create(ctx, &AuditLog{
		Action:  ev.Action,
		Role:    ev.Role,
		Value:   ev.Value,
		Source:  ev.Source,
		Details: ev.Details,
	})
}

// Create inserts log. ID, DeviceID, Source and CreatedAt are filled in when
// empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.DeviceID == "" {
		log.DeviceID = r.deviceID
	}
	if log.Source == "" {
		log.Source = sourceSystem
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, device_id, role, value, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.DeviceID,
		nullable(log.Role), nullable(log.Value),
		log.Source, nullable(log.Details),
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns a page of logs matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, filter.Role)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, device_id, role, value, source, details, created_at FROM audit_logs " + //nolint:gosec // placeholders only
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var log AuditLog
		var role, value, details sql.NullString
		var createdAt string
		if err := rows.Scan(&log.ID, &log.Action, &log.DeviceID, &role, &value,
			&log.Source, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		log.Role = role.String
		log.Value = value.String
		log.Details = details.String

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
