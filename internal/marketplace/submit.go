package marketplace

import (
	"context"
	stderrors "errors"
	"strings"

	"gigflow/internal/common/errors"
	"gigflow/internal/common/metrics"
	"gigflow/internal/common/observability"
	"gigflow/internal/models"
	"gigflow/internal/storage"
)

type SubmitProposalInput struct {
	TaskID     string
	ProposerID string
	Message    string
	Price      int64
}

func (in *SubmitProposalInput) validate() error {
	if err := requireCaller(in.ProposerID); err != nil {
		return err
	}
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.TaskID == "":
		return errors.NewValidationFailedError("gigId is required")
	case in.Message == "":
		return errors.NewValidationFailedError("message must not be empty")
	case in.Price <= 0:
		return errors.NewValidationFailedError("price must be greater than zero")
	}
	return nil
}

// SubmitProposal records a new pending proposal. Checks run in order and the
// first failure wins: the task exists, it is open, the caller is not its
// owner, and the caller has no proposal on it yet.
func (s *Service) SubmitProposal(ctx context.Context, in SubmitProposalInput) (p *models.Proposal, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.SubmitProposal", "task.id", in.TaskID)
	defer func() {
		metrics.ProposalsSubmitted.WithLabelValues(outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}

	task, err := s.store.GetTask(ctx, in.TaskID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("Gig", in.TaskID)
		}
		return nil, errors.NewInternalError(err)
	}
	if !task.IsOpen() {
		return nil, errors.NewTaskClosedError(task.ID)
	}
	if task.OwnerID == in.ProposerID {
		return nil, errors.NewSelfBidForbiddenError(task.ID)
	}

	now := s.now()
	proposal := &models.Proposal{
		ID:         s.newID(),
		TaskID:     task.ID,
		ProposerID: in.ProposerID,
		Message:    in.Message,
		Price:      in.Price,
		Status:     models.ProposalPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.insertProposal(ctx, proposal); err != nil {
		if errors.HasCode(err, errors.ErrCodeDuplicateProposal) {
			s.logger.Info("Duplicate proposal rejected", map[string]interface{}{
				"taskId":     task.ID,
				"proposerId": in.ProposerID,
			})
		}
		return nil, err
	}

	proposal.Task = task.Summary()
	s.logger.Info("Proposal submitted", map[string]interface{}{
		"proposalId": proposal.ID,
		"taskId":     task.ID,
		"proposerId": in.ProposerID,
	})
	return proposal, nil
}
