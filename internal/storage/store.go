// Package storage defines the record store the hiring core runs on.
package storage

import (
	"context"
	"errors"

	"gigflow/internal/models"
)

var (
	// ErrNotFound is returned when a task or proposal does not exist.
	ErrNotFound = errors.New("storage: record not found")

	// ErrUniqueViolation is returned when a proposal already exists for the
	// same (task, proposer) pair.
	ErrUniqueViolation = errors.New("storage: unique constraint violation")
)

// TaskFilter selects tasks. Zero fields do not filter. Results are newest first.
type TaskFilter struct {
	Status        models.TaskStatus
	OwnerID       string
	TitleContains string
	// IDs restricts the result to the given ids. A non-nil empty slice selects nothing.
	IDs []string
}

// Store is the record store. Reads only ever observe committed state.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)

	// CreateProposal inserts a pending proposal, returning ErrUniqueViolation
	// when the pair already has one.
	CreateProposal(ctx context.Context, p *models.Proposal) error
	// GetProposal returns the proposal with its task summary.
	GetProposal(ctx context.Context, id string) (*models.Proposal, error)
	ListProposalsByTask(ctx context.Context, taskID string) ([]*models.Proposal, error)
	// ListProposalsByProposer returns the proposals with their task summary.
	ListProposalsByProposer(ctx context.Context, proposerID string) ([]*models.Proposal, error)

	// WithHireTx runs fn inside one all-or-nothing unit. fn's writes become
	// visible together when it returns nil and are discarded otherwise. The
	// error fn returns is passed through unchanged.
	WithHireTx(ctx context.Context, fn func(ctx context.Context, tx HireTx) error) error

	Ping(ctx context.Context) error
}

// HireTx is the set of operations available inside a hiring transaction.
type HireTx interface {
	// LoadProposalForHire reads the proposal and its task, holding an
	// exclusive lock on the task until the transaction ends.
	LoadProposalForHire(ctx context.Context, proposalID string) (*models.Proposal, *models.Task, error)
	// AssignTask moves the task from open to assigned. It reports false when
	// the task was no longer open.
	AssignTask(ctx context.Context, taskID string) (bool, error)
	// MarkHired moves the proposal from pending to hired. It reports false
	// when the proposal was no longer pending.
	MarkHired(ctx context.Context, proposalID string) (bool, error)
	// RejectPendingSiblings rejects every other pending proposal of the task
	// and returns how many rows changed.
	RejectPendingSiblings(ctx context.Context, taskID, hiredProposalID string) (int64, error)
}
