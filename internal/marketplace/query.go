package marketplace

import (
	"context"
	stderrors "errors"
	"strings"

	"gigflow/internal/common/errors"
	"gigflow/internal/models"
	"gigflow/internal/storage"
)

// ListProposalsForTask returns every proposal of a task, newest first. Only
// the task owner may see them.
func (s *Service) ListProposalsForTask(ctx context.Context, taskID, callerID string) ([]*models.Proposal, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != callerID {
		return nil, errors.NewForbiddenError("only the gig owner can view its bids")
	}

	proposals, err := s.store.ListProposalsByTask(ctx, taskID)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	return proposals, nil
}

// ListMyProposals returns the caller's proposals with their task summary, newest first.
func (s *Service) ListMyProposals(ctx context.Context, callerID string) ([]*models.Proposal, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposalsByProposer(ctx, callerID)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	return proposals, nil
}

// GetProposal returns a proposal with its task summary. It performs no
// caller check; workflow workers use it to reconcile redelivered jobs.
func (s *Service) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("Bid", proposalID)
		}
		return nil, errors.NewInternalError(err)
	}
	return p, nil
}

// GetTask is public.
func (s *Service) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return s.getTask(ctx, taskID)
}

func (s *Service) getTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("Gig", taskID)
		}
		return nil, errors.NewInternalError(err)
	}
	return task, nil
}

// ListOpenTasks returns open tasks, newest first, optionally narrowed to titles
// matching search. With an index configured the index picks the candidates
// and the store re-reads them, so only committed open tasks come back. If the
// index fails the store's own case-insensitive substring match is used.
func (s *Service) ListOpenTasks(ctx context.Context, search string) ([]*models.Task, error) {
	filter := storage.TaskFilter{Status: models.TaskOpen}

	if search = strings.TrimSpace(search); search != "" {
		filter.TitleContains = search
		if s.index != nil {
			ids, err := s.index.SearchTaskIDs(ctx, search)
			if err != nil {
				s.logger.Warn("Task index search failed, falling back to store", map[string]interface{}{
					"search": search,
					"error":  err,
				})
			} else {
				filter.TitleContains = ""
				filter.IDs = ids
				if filter.IDs == nil {
					filter.IDs = []string{}
				}
			}
		}
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	return tasks, nil
}

// ListMyTasks returns the tasks the caller owns, newest first.
func (s *Service) ListMyTasks(ctx context.Context, callerID string) ([]*models.Task, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, storage.TaskFilter{OwnerID: callerID})
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	return tasks, nil
}
