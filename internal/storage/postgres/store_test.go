package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/models"
	"gigflow/internal/storage"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, 3*time.Second), mock
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "budget", "owner_id", "status", "created_at", "updated_at"})
}

func TestStore_CreateProposal_UniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO proposals`)).
		WithArgs("p1", "t1", "B", "M1", int64(400), "pending", now, now).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "proposals_task_proposer_key"})

	err := store.CreateProposal(context.Background(), &models.Proposal{
		ID: "p1", TaskID: "t1", ProposerID: "B", Message: "M1", Price: 400,
		Status: models.ProposalPending, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, storage.ErrUniqueViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateProposal_OtherErrorIsWrapped(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO proposals`)).
		WillReturnError(stderrors.New("connection reset"))

	err := store.CreateProposal(context.Background(), &models.Proposal{ID: "p1", TaskID: "t1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrUniqueViolation)
	assert.Contains(t, err.Error(), "insert proposal")
}

func TestStore_GetTask(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, description, budget, owner_id, status, created_at, updated_at FROM tasks WHERE id = $1`)).
		WithArgs("t1").
		WillReturnRows(taskRows().AddRow("t1", "Logo", "Need a logo", int64(500), "A", "open", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tasks WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tasks WHERE id = $1`)).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	task, err := store.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskOpen, task.Status)
	assert.Equal(t, int64(500), task.Budget)

	_, err = store.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetTask(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListTasks_BuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tasks WHERE status = $1 AND position(lower($2) in lower(title)) > 0 AND id::text = ANY($3) ORDER BY created_at DESC`)).
		WithArgs("open", "logo", pq.Array([]string{"t1", "t2"})).
		WillReturnRows(taskRows().
			AddRow("t2", "Logo v2", "d", int64(10), "A", "open", now, now).
			AddRow("t1", "Logo", "d", int64(5), "A", "open", now.Add(-time.Hour), now))

	tasks, err := store.ListTasks(context.Background(), storage.TaskFilter{
		Status:        models.TaskOpen,
		TitleContains: "logo",
		IDs:           []string{"t1", "t2"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t2", tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListTasks_EmptyIDsShortCircuits(t *testing.T) {
	store, mock := newMockStore(t)
	tasks, err := store.ListTasks(context.Background(), storage.TaskFilter{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListProposalsByProposer_IncludesTaskSummary(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE p.proposer_id = $1 ORDER BY p.created_at DESC`)).
		WithArgs("B").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "task_id", "proposer_id", "message", "price", "status", "created_at", "updated_at",
			"title", "budget", "status", "owner_id",
		}).AddRow("p1", "t1", "B", "M1", int64(400), "hired", now, now, "Logo", int64(500), "assigned", "A"))

	ps, err := store.ListProposalsByProposer(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, models.ProposalHired, ps[0].Status)
	require.NotNil(t, ps[0].Task)
	assert.Equal(t, models.TaskAssigned, ps[0].Task.Status)
	assert.Equal(t, "t1", ps[0].Task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectLoadForHire(mock sqlmock.Sqlmock, taskStatus string) {
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE OF t`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "task_id", "proposer_id", "message", "price", "status", "created_at", "updated_at",
			"id", "title", "description", "budget", "owner_id", "status", "created_at", "updated_at",
		}).AddRow("p1", "t1", "B", "M1", int64(400), "pending", now, now,
			"t1", "Logo", "d", int64(500), "A", taskStatus, now, now))
}

func TestStore_WithHireTx_Commit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '3000ms'`)).WillReturnResult(sqlmock.NewResult(0, 0))
	expectLoadForHire(mock, "open")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE tasks SET status = 'assigned', updated_at = now() WHERE id = $1 AND status = 'open'`)).
		WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE proposals SET status = 'hired'`)).
		WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE proposals SET status = 'rejected'`)).
		WithArgs("t1", "p1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		p, task, err := tx.LoadProposalForHire(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "A", task.OwnerID)
		assert.Equal(t, "Logo", p.Task.Title)

		ok, err := tx.AssignTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.MarkHired(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		n, err := tx.RejectPendingSiblings(ctx, task.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithHireTx_LostConditionalUpdateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	sentinel := stderrors.New("already assigned")

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	expectLoadForHire(mock, "open")
	mock.ExpectExec(`UPDATE tasks SET status = 'assigned'`).
		WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		if _, _, err := tx.LoadProposalForHire(ctx, "p1"); err != nil {
			return err
		}
		ok, err := tx.AssignTask(ctx, "t1")
		require.NoError(t, err)
		if !ok {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithHireTx_LockTimeoutSurfaces(t *testing.T) {
	store, mock := newMockStore(t)
	lockErr := &pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"}

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE OF t`).WithArgs("p1").WillReturnError(lockErr)
	mock.ExpectRollback()

	err := store.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		_, _, err := tx.LoadProposalForHire(ctx, "p1")
		return err
	})
	var pqErr *pq.Error
	require.True(t, stderrors.As(err, &pqErr))
	assert.Equal(t, pq.ErrorCode("55P03"), pqErr.Code)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithHireTx_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

	err := store.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit hire tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadProposalForHire_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE OF t`).WithArgs("p1").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		_, _, err := tx.LoadProposalForHire(ctx, "p1")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
