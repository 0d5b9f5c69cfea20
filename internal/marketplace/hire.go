package marketplace

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gigflow/internal/common/errors"
	"gigflow/internal/common/metrics"
	"gigflow/internal/common/observability"
	"gigflow/internal/models"
	"gigflow/internal/storage"
)

const indexTimeout = 5 * time.Second

// Hire makes callerID's choice of proposal final. Inside one store
// transaction it locks the task, re-validates it, assigns it, hires the
// proposal and rejects every other pending proposal. Exactly one of several
// concurrent hires on the same task commits; the rest see the task assigned
// and fail with TASK_ALREADY_ASSIGNED. Any failure to commit is reported as
// the retryable TRANSACTION_FAILED and leaves no partial state.
//
// A committed hire re-indexes the task and produces one event for the
// winning proposer. The event is dispatched in the background; index and
// delivery problems are logged and never fail the hire.
func (s *Service) Hire(ctx context.Context, proposalID, callerID string) (hired *models.Proposal, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "marketplace.Hire", "proposal.id", proposalID)
	defer func() {
		label := outcome(err)
		metrics.HireAttempts.WithLabelValues(label).Inc()
		metrics.HireDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		observability.EndSpan(span, err)
	}()

	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if proposalID == "" {
		return nil, errors.NewValidationFailedError("bidId is required")
	}

	txCtx, cancel := context.WithTimeout(ctx, s.config.TransactionTimeout)
	defer cancel()

	var (
		committed *models.Proposal
		assigned  *models.Task
	)
	txErr := s.store.WithHireTx(txCtx, func(ctx context.Context, tx storage.HireTx) error {
		p, task, err := tx.LoadProposalForHire(ctx, proposalID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NewNotFoundError("Bid", proposalID)
			}
			return err
		}
		if task.OwnerID != callerID {
			return errors.NewForbiddenError("only the gig owner can hire")
		}
		if !task.IsOpen() {
			return errors.NewTaskAlreadyAssignedError(task.ID)
		}

		ok, err := tx.AssignTask(ctx, task.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewTaskAlreadyAssignedError(task.ID)
		}

		marked, err := tx.MarkHired(ctx, p.ID)
		if err != nil {
			return err
		}
		if !marked {
			return errors.NewInternalError(fmt.Errorf("proposal %s is %s on open gig %s", p.ID, p.Status, task.ID))
		}

		rejected, err := tx.RejectPendingSiblings(ctx, task.ID, p.ID)
		if err != nil {
			return err
		}

		now := s.now()
		p.Status = models.ProposalHired
		p.UpdatedAt = now
		task.Status = models.TaskAssigned
		task.UpdatedAt = now
		p.Task = task.Summary()
		committed = p
		assigned = task

		s.logger.Debug("Hire staged", map[string]interface{}{
			"proposalId": p.ID,
			"taskId":     task.ID,
			"rejected":   rejected,
		})
		return nil
	})
	if txErr != nil {
		return nil, s.hireFailure(proposalID, txErr)
	}

	s.logger.Info("Proposal hired", map[string]interface{}{
		"proposalId": committed.ID,
		"taskId":     committed.TaskID,
		"proposerId": committed.ProposerID,
	})

	hired = s.reloadHired(ctx, committed)
	s.reindexTask(ctx, assigned)
	s.notifyHire(ctx, hired)
	return hired, nil
}

// hireFailure keeps domain errors and turns every other failure of the
// transaction (lock wait, deadline, serialization, commit) into TRANSACTION_FAILED.
func (s *Service) hireFailure(proposalID string, err error) error {
	if stdErr, ok := errors.As(err); ok {
		return stdErr
	}
	s.logger.Warn("Hire transaction failed", map[string]interface{}{
		"proposalId": proposalID,
		"error":      err,
	})
	return errors.NewTransactionFailedError(err)
}

// reloadHired reads the committed proposal back, falling back to the staged copy.
func (s *Service) reloadHired(ctx context.Context, staged *models.Proposal) *models.Proposal {
	p, err := s.store.GetProposal(ctx, staged.ID)
	if err != nil {
		s.logger.Warn("Failed to reload hired proposal", map[string]interface{}{
			"proposalId": staged.ID,
			"error":      err,
		})
		return staged
	}
	return p
}

// reindexTask refreshes the task's status in the search index so assigned
// tasks stop matching open-task searches.
func (s *Service) reindexTask(ctx context.Context, task *models.Task) {
	if s.index == nil || task == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
	defer cancel()
	if err := s.index.IndexTask(ctx, task); err != nil {
		s.logger.Warn("Failed to re-index hired gig", map[string]interface{}{
			"taskId": task.ID,
			"error":  err,
		})
	}
}

// notifyHire dispatches the hire event on its own goroutine. WaitNotifications
// blocks until every dispatch started so far has returned.
func (s *Service) notifyHire(ctx context.Context, p *models.Proposal) {
	if s.notifier == nil || p.Task == nil {
		return
	}
	event := models.NewHireEvent(s.newID(), *p.Task, p, s.now())

	// Delivery outlives the request context.
	dctx := context.WithoutCancel(ctx)
	proposalID := p.ID
	s.dispatching.Add(1)
	go func() {
		defer s.dispatching.Done()
		if err := s.notifier.Dispatch(dctx, event); err != nil {
			s.logger.Warn("Hire notification failed", map[string]interface{}{
				"proposalId":  proposalID,
				"recipientId": event.RecipientID,
				"error":       err,
			})
		}
	}()
}

// WaitNotifications waits for in-flight hire notifications. Call it during
// shutdown after the HTTP server and job workers have stopped.
func (s *Service) WaitNotifications() {
	s.dispatching.Wait()
}
