package marketplace

import (
	"context"
	stderrors "errors"

	"gigflow/internal/common/errors"
	"gigflow/internal/models"
	"gigflow/internal/storage"
)

// insertProposal lets the store's unique constraint decide whether the
// (task, proposer) pair is still free. No lookup precedes the insert.
func (s *Service) insertProposal(ctx context.Context, p *models.Proposal) error {
	err := s.store.CreateProposal(ctx, p)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, storage.ErrUniqueViolation):
		return errors.NewDuplicateProposalError(p.TaskID, p.ProposerID)
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.NewNotFoundError("Gig", p.TaskID)
	default:
		return errors.NewInternalError(err)
	}
}
