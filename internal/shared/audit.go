package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Audit actions.
const (
	AuditPermissionsUpdated = "staff.permissions.update"
)

var errAuditIncomplete = errors.New("audit: action, entity and entity id are required")

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate reports whether the entry can be stored.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errAuditIncomplete
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs. *pgxpool.Pool and pgx.Tx both work as db.
type AuditLogger struct {
	db  execer
	now func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db execer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

const insertAudit = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Record persists the log entry. A zero At is stamped with the current time.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit: logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	at := log.At
	if at.IsZero() {
		at = l.now()
	}
	if _, err := l.db.Exec(ctx, insertAudit, log.ActorID, log.Action, log.Entity, log.EntityID, meta, at.UTC()); err != nil {
		return fmt.Errorf("audit: insert %s: %w", log.Action, err)
	}
	return nil
}
