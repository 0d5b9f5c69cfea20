package memory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"gigflow/internal/models"
	"gigflow/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t1", Title: "Logo design", OwnerID: "A", Status: models.TaskOpen, Budget: 500, CreatedAt: base}))
	require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t2", Title: "Landing page", OwnerID: "A", Status: models.TaskOpen, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.CreateProposal(ctx, &models.Proposal{ID: "p1", TaskID: "t1", ProposerID: "B", Price: 400, Status: models.ProposalPending, CreatedAt: base}))
	require.NoError(t, s.CreateProposal(ctx, &models.Proposal{ID: "p2", TaskID: "t1", ProposerID: "C", Price: 450, Status: models.ProposalPending, CreatedAt: base.Add(time.Minute)}))
	return s
}

func TestStore_CreateProposalRejectsSecondForPair(t *testing.T) {
	s := seed(t)
	err := s.CreateProposal(context.Background(), &models.Proposal{ID: "p3", TaskID: "t1", ProposerID: "B", Price: 1})
	assert.ErrorIs(t, err, storage.ErrUniqueViolation)

	p, err := s.GetProposal(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), p.Price)
	assert.Equal(t, "Logo design", p.Task.Title)
}

func TestStore_ListTasksFilters(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	all, err := s.ListTasks(ctx, storage.TaskFilter{Status: models.TaskOpen})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID, "newest first")

	logo, err := s.ListTasks(ctx, storage.TaskFilter{TitleContains: "LOGO"})
	require.NoError(t, err)
	require.Len(t, logo, 1)
	assert.Equal(t, "t1", logo[0].ID)

	none, err := s.ListTasks(ctx, storage.TaskFilter{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ListProposalsNewestFirst(t *testing.T) {
	s := seed(t)
	ps, err := s.ListProposalsByTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "p2", ps[0].ID)

	mine, err := s.ListProposalsByProposer(context.Background(), "C")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(500), mine[0].Task.Budget)
}

func TestStore_HireTxDiscardsWritesOnError(t *testing.T) {
	s := seed(t)
	boom := stderrors.New("boom")

	err := s.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		_, _, err := tx.LoadProposalForHire(ctx, "p1")
		require.NoError(t, err)
		ok, err := tx.AssignTask(ctx, "t1")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	task, err := s.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskOpen, task.Status)
}

func TestStore_HireTxCommitsAllWrites(t *testing.T) {
	s := seed(t)
	err := s.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		if _, _, err := tx.LoadProposalForHire(ctx, "p1"); err != nil {
			return err
		}
		if _, err := tx.AssignTask(ctx, "t1"); err != nil {
			return err
		}
		if _, err := tx.MarkHired(ctx, "p1"); err != nil {
			return err
		}
		n, err := tx.RejectPendingSiblings(ctx, "t1", "p1")
		assert.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	p1, _ := s.GetProposal(context.Background(), "p1")
	p2, _ := s.GetProposal(context.Background(), "p2")
	assert.Equal(t, models.ProposalHired, p1.Status)
	assert.Equal(t, models.ProposalRejected, p2.Status)
	assert.Equal(t, models.TaskAssigned, p1.Task.Status)
}

func TestStore_TaskLockHonoursContext(t *testing.T) {
	s := seed(t)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = s.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
			_, _, err := tx.LoadProposalForHire(ctx, "p1")
			close(held)
			<-release
			return err
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithHireTx(ctx, func(ctx context.Context, tx storage.HireTx) error {
		_, _, err := tx.LoadProposalForHire(ctx, "p2")
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestStore_LoadProposalForHireMissing(t *testing.T) {
	s := seed(t)
	err := s.WithHireTx(context.Background(), func(ctx context.Context, tx storage.HireTx) error {
		_, _, err := tx.LoadProposalForHire(ctx, "nope")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
