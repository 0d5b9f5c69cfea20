package submitproposal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"gigflow/internal/common/errors"
	"gigflow/internal/common/logger"
	"gigflow/internal/common/metrics"
	"gigflow/internal/common/validation"
	"gigflow/internal/marketplace"
)

const (
	TaskType = "submit-proposal"
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

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationFailedError("job variables are not a JSON object")
	}
	if err := validation.ValidateVariables(validation.SchemaSubmitProposal, vars); err != nil {
		return nil, err
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewValidationFailedError("parse input: " + err.Error())
	}
	return &input, nil
}

// Execute submits the proposal on behalf of the bidder named in the process.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	proposal, err := h.service.SubmitProposal(ctx, marketplace.SubmitProposalInput{
		TaskID:     input.GigID,
		ProposerID: input.BidderID,
		Message:    input.Message,
		Price:      input.Price,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("bid submitted", map[string]interface{}{
		"bidId":    proposal.ID,
		"gigId":    proposal.TaskID,
		"bidderId": proposal.ProposerID,
	})

	return &Output{
		BidID:     proposal.ID,
		GigID:     proposal.TaskID,
		BidStatus: string(proposal.Status),
		CreatedAt: proposal.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
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
		"jobKey": job.Key,
	})
}
