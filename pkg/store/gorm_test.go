package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(gdb), mock
}

func TestGormGetOpportunity(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "name", "customer", "stage", "expected_amount", "created_at"}).
		AddRow("o1", "Fleet renewal", "Acme", "PROPOSAL", 12000.5, t0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `opportunities` WHERE id = ?")).
		WillReturnRows(rows)

	o, err := s.GetOpportunity(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Fleet renewal", o.Name)
	assert.Equal(t, model.StageProposal, o.Stage)
	assert.Equal(t, 12000.5, o.ExpectedAmount)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `opportunities` WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.GetOpportunity(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDeleteOpportunityMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `opportunities` WHERE id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteOpportunity(context.Background(), "o1")
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUpdateInstanceStaleVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `approval_instances` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.UpdateInstance(context.Background(), sampleInstance("i1", t0))
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUpdateInstanceWritesTasks(t *testing.T) {
	s, mock := newMockStore(t)
	in := sampleInstance("i1", t0)
	in.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `approval_instances` SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `approval_tasks` SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `approval_tasks` SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := s.UpdateInstance(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCountUsers(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(2))

	n, err := s.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormListAuditByTarget(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "actor", "action", "target", "detail", "timestamp"}).
		AddRow(7, "alice", "approve", "i1", "step Manager", t0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `audit_entries` WHERE target = ? ORDER BY id DESC")).
		WillReturnRows(rows)

	out, err := s.ListAudit(context.Background(), "i1", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "approve", out[0].Action)
	assert.Equal(t, uint(7), out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormCreateFirstUser(t *testing.T) {
	t.Run("closed once a user exists", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `users` FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))
		mock.ExpectRollback()

		err := s.CreateFirstUser(context.Background(), model.User{ID: "u2", Username: "eve"})
		assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts into an empty table", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `users` FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users`")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.CreateFirstUser(context.Background(), model.User{ID: "u1", Username: "root", IsAdmin: true}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormPendingTasks(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "instance_id", "seq", "node_id", "status", "assignee", "attachments", "created_at", "instance_title", "initiator_name", "business_type"}).
		AddRow("t1", "i1", 1, "n1", "PENDING", "u2", `["quote.pdf"]`, t0, "Purchase 20 laptops", "Alice", "purchase_order")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t.*, i.title AS instance_title, i.initiator_name, i.business_type FROM approval_tasks AS t JOIN approval_instances AS i ON i.id = t.instance_id AND i.current_node_id = t.node_id WHERE")).
		WithArgs("u2", model.TaskPending, model.InstancePending).
		WillReturnRows(rows)

	out, err := s.PendingTasks(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].ID)
	assert.Equal(t, "i1", out[0].InstanceID)
	assert.Equal(t, "Purchase 20 laptops", out[0].InstanceTitle)
	assert.Equal(t, "Alice", out[0].InitiatorName)
	assert.Equal(t, "purchase_order", out[0].BusinessType)
	assert.Equal(t, []string{"quote.pdf"}, out[0].Attachments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
