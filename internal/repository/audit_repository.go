package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/plantdesk/plantdesk/internal/model"
)

// Audit listing limits
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditRepository handles the append-only security audit log
type AuditRepository struct {
	db Querier
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a new audit event
func (r *AuditRepository) Append(ctx context.Context, event *model.AuditEvent) error {
	query := `
		INSERT INTO audit_log (id, actor, kind, success, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Actor,
		string(event.Kind),
		event.Success,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// List returns events newest first
func (r *AuditRepository) List(ctx context.Context, filter model.AuditFilter) ([]model.AuditEvent, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		where = append(where, fmt.Sprintf("actor = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	args = append(args, ClampAuditLimit(filter.Limit))

	query := `SELECT id, actor, kind, success, detail, created_at FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			event model.AuditEvent
			kind  string
		)
		if err := rows.Scan(&event.ID, &event.Actor, &kind, &event.Success, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Kind = model.AuditKind(kind)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// ClampAuditLimit applies the default and ceiling to a requested limit
func ClampAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditLimit
	case limit > MaxAuditLimit:
		return MaxAuditLimit
	}
	return limit
}
