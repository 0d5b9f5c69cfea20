// Package postgres implements storage.Store on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"gigflow/internal/models"
	"gigflow/internal/storage"
)

const (
	taskColumns     = `id, title, description, budget, owner_id, status, created_at, updated_at`
	proposalColumns = `id, task_id, proposer_id, message, price, status, created_at, updated_at`
)

// Store persists tasks and proposals in Postgres.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// New wraps db. lockTimeout bounds how long a hire waits for the task row
// lock; zero leaves the server default.
func New(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Budget, &t.OwnerID, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	return &t, nil
}

func scanProposal(row rowScanner) (*models.Proposal, error) {
	var p models.Proposal
	var status string
	if err := row.Scan(&p.ID, &p.TaskID, &p.ProposerID, &p.Message, &p.Price, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatus(status)
	return &p, nil
}

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Title, t.Description, t.Budget, t.OwnerID, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, classifyRead(err, "get task")
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, f storage.TaskFilter) ([]*models.Task, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return []*models.Task{}, nil
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.TitleContains != "" {
		add("position(lower($%d) in lower(title)) > 0", f.TitleContains)
	}
	if f.IDs != nil {
		add("id::text = ANY($%d)", pq.Array(f.IDs))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateProposal(ctx context.Context, p *models.Proposal) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO proposals (`+proposalColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.TaskID, p.ProposerID, p.Message, p.Price, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, uniqueProposalConstraint) {
		return storage.ErrUniqueViolation
	}
	if isForeignKeyViolation(err) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("insert proposal: %w", err)
}

const proposalWithTaskQuery = `
SELECT p.id, p.task_id, p.proposer_id, p.message, p.price, p.status, p.created_at, p.updated_at,
       t.title, t.budget, t.status, t.owner_id
FROM proposals p
JOIN tasks t ON t.id = p.task_id`

func scanProposalWithTask(row rowScanner) (*models.Proposal, error) {
	var (
		p          models.Proposal
		summary    models.TaskSummary
		pStatus    string
		taskStatus string
	)
	err := row.Scan(&p.ID, &p.TaskID, &p.ProposerID, &p.Message, &p.Price, &pStatus, &p.CreatedAt, &p.UpdatedAt,
		&summary.Title, &summary.Budget, &taskStatus, &summary.OwnerID)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatus(pStatus)
	summary.ID = p.TaskID
	summary.Status = models.TaskStatus(taskStatus)
	p.Task = &summary
	return &p, nil
}

func (s *Store) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	p, err := scanProposalWithTask(s.db.QueryRowContext(ctx, proposalWithTaskQuery+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, classifyRead(err, "get proposal")
	}
	return p, nil
}

func (s *Store) ListProposalsByTask(ctx context.Context, taskID string) ([]*models.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE task_id = $1 ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list proposals by task: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListProposalsByProposer(ctx context.Context, proposerID string) ([]*models.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		proposalWithTaskQuery+` WHERE p.proposer_id = $1 ORDER BY p.created_at DESC`, proposerID)
	if err != nil {
		return nil, fmt.Errorf("list proposals by proposer: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Proposal, 0)
	for rows.Next() {
		p, err := scanProposalWithTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// classifyRead maps a missing row, or an id that is not a UUID, to ErrNotFound.
func classifyRead(err error, op string) error {
	if stderrors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
