package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/plantdesk/plantdesk/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository_Append(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)
	now := time.Now()
	event := model.NewAuditEvent("aud_1", "", model.AuditLoginAttempt, false, "Empty credentials", now)

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("aud_1", "unknown", "LOGIN_ATTEMPT", false, "Empty credentials", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, actor, kind, success, detail, created_at FROM audit_log WHERE actor = \$1 AND kind = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("alice", "LOGIN_FAILED", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor", "kind", "success", "detail", "created_at"}).
			AddRow("aud_2", "alice", "LOGIN_FAILED", false, "Invalid password", now).
			AddRow("aud_1", "alice", "LOGIN_FAILED", false, "Invalid password", now.Add(-time.Minute)))

	events, err := repo.List(context.Background(), model.AuditFilter{Actor: "alice", Kind: model.AuditLoginFailed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "aud_2", events[0].ID)
	assert.Equal(t, model.AuditLoginFailed, events[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListWithoutFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectQuery(`FROM audit_log ORDER BY created_at DESC, id DESC LIMIT \$1`).
		WithArgs(DefaultAuditLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor", "kind", "success", "detail", "created_at"}))

	events, err := repo.List(context.Background(), model.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampAuditLimit(t *testing.T) {
	assert.Equal(t, DefaultAuditLimit, ClampAuditLimit(0))
	assert.Equal(t, DefaultAuditLimit, ClampAuditLimit(-3))
	assert.Equal(t, 25, ClampAuditLimit(25))
	assert.Equal(t, MaxAuditLimit, ClampAuditLimit(50000))
}

func TestActivityRepository_Append(t *testing.T) {
	db, mock := newMock(t)
	repo := NewActivityRepository(db)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(int64(3), "LOGIN", "Successful login", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), &model.ActivityRecord{
		AccountID: 3, Activity: model.ActivityLogin, Detail: "Successful login", CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
