package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"gigflow/internal/models"
	"gigflow/internal/storage"
)

// WithHireTx runs fn in a READ COMMITTED transaction. The task row lock taken
// by LoadProposalForHire plus the conditional status updates serialize
// competing hires on one task.
func (s *Store) WithHireTx(ctx context.Context, fn func(ctx context.Context, tx storage.HireTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin hire tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if ms := s.lockTimeout.Milliseconds(); ms > 0 {
		// SET does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &hireTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hire tx: %w", err)
	}
	return nil
}

type hireTx struct {
	tx *sql.Tx
}

const loadForHireQuery = `
SELECT p.id, p.task_id, p.proposer_id, p.message, p.price, p.status, p.created_at, p.updated_at,
       t.id, t.title, t.description, t.budget, t.owner_id, t.status, t.created_at, t.updated_at
FROM proposals p
JOIN tasks t ON t.id = p.task_id
WHERE p.id = $1
FOR UPDATE OF t`

func (h *hireTx) LoadProposalForHire(ctx context.Context, proposalID string) (*models.Proposal, *models.Task, error) {
	var p models.Proposal
	var t models.Task
	var pStatus, taskStatus string
	err := h.tx.QueryRowContext(ctx, loadForHireQuery, proposalID).Scan(
		&p.ID, &p.TaskID, &p.ProposerID, &p.Message, &p.Price, &pStatus, &p.CreatedAt, &p.UpdatedAt,
		&t.ID, &t.Title, &t.Description, &t.Budget, &t.OwnerID, &taskStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("load proposal for hire: %w", err)
	}
	p.Status = models.ProposalStatus(pStatus)
	t.Status = models.TaskStatus(taskStatus)
	p.Task = t.Summary()
	return &p, &t, nil
}

func (h *hireTx) AssignTask(ctx context.Context, taskID string) (bool, error) {
	res, err := h.tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'assigned', updated_at = now() WHERE id = $1 AND status = 'open'`, taskID)
	if err != nil {
		return false, fmt.Errorf("assign task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign task: %w", err)
	}
	return n == 1, nil
}

func (h *hireTx) MarkHired(ctx context.Context, proposalID string) (bool, error) {
	res, err := h.tx.ExecContext(ctx,
		`UPDATE proposals SET status = 'hired', updated_at = now() WHERE id = $1 AND status = 'pending'`, proposalID)
	if err != nil {
		return false, fmt.Errorf("mark hired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark hired: %w", err)
	}
	return n == 1, nil
}

func (h *hireTx) RejectPendingSiblings(ctx context.Context, taskID, hiredProposalID string) (int64, error) {
	res, err := h.tx.ExecContext(ctx,
		`UPDATE proposals SET status = 'rejected', updated_at = now()
WHERE task_id = $1 AND id <> $2 AND status = 'pending'`, taskID, hiredProposalID)
	if err != nil {
		return 0, fmt.Errorf("reject pending siblings: %w", err)
	}
	return res.RowsAffected()
}
