package repository

import (
	"context"
	"fmt"

	"github.com/plantdesk/plantdesk/internal/model"
)

// ActivityRepository appends per-account activity records
type ActivityRepository struct {
	db Querier
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db Querier) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts an activity record
func (r *ActivityRepository) Append(ctx context.Context, record *model.ActivityRecord) error {
	query := `
		INSERT INTO activity_log (account_id, activity, detail, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, record.AccountID, string(record.Activity), record.Detail, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}
