package hireproposal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"gigflow/internal/common/errors"
	"gigflow/internal/common/logger"
	"gigflow/internal/common/metrics"
	"gigflow/internal/marketplace"
	"gigflow/internal/models"
)

const (
	TaskType = "hire-proposal"
)

type Handler struct {
	config       *Config
	service      *marketplace.Service
	logger       logger.Logger
	errorHandler *errors.JobErrorHandler
}

func NewHandler(config *Config, service *marketplace.Service, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      service,
		logger:       log,
		errorHandler: errors.NewJobErrorHandler(log),
	}
}

// Handle runs one hire job. TRANSACTION_FAILED is failed with retries so the
// engine re-runs the job; every other failure is thrown as a BPMN error.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationFailedError("parse input: "+err.Error()))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	input.BidID = strings.TrimSpace(input.BidID)
	if input.BidID == "" {
		return nil, errors.NewValidationFailedError("bidId is required")
	}

	proposal, err := h.service.Hire(ctx, input.BidID, input.OwnerID)
	if errors.HasCode(err, errors.ErrCodeTaskAlreadyAssigned) {
		proposal, err = h.alreadyHired(ctx, input, err)
	}
	if err != nil {
		return nil, err
	}

	out := &Output{
		BidID:        proposal.ID,
		GigID:        proposal.TaskID,
		FreelancerID: proposal.ProposerID,
		BidStatus:    string(proposal.Status),
		HiredAt:      proposal.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if proposal.Task != nil {
		out.GigStatus = string(proposal.Task.Status)
	}
	return out, nil
}

// alreadyHired resolves a redelivered job: if the bid this job names is the
// one that won, the earlier attempt committed and the job completes as
// before. Otherwise the original GIG_ALREADY_ASSIGNED stands.
func (h *Handler) alreadyHired(ctx context.Context, input *Input, hireErr error) (*models.Proposal, error) {
	proposal, err := h.service.GetProposal(ctx, input.BidID)
	if err != nil {
		return nil, hireErr
	}
	if proposal.Status != models.ProposalHired || proposal.Task == nil || proposal.Task.OwnerID != input.OwnerID {
		return nil, hireErr
	}
	h.logger.Info("bid already hired, completing redelivered job", map[string]interface{}{
		"bidId": proposal.ID,
		"gigId": proposal.TaskID,
	})
	return proposal, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey":       job.Key,
		"bidId":        output.BidID,
		"freelancerId": output.FreelancerID,
	})
}
