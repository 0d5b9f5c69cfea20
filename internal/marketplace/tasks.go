package marketplace

import (
	"context"
	"strings"

	"gigflow/internal/common/errors"
	"gigflow/internal/models"
)

type CreateTaskInput struct {
	OwnerID     string
	Title       string
	Description string
	Budget      int64
}

// CreateTask posts a new open task and indexes its title best-effort.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if err := requireCaller(in.OwnerID); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return nil, errors.NewValidationFailedError("title must not be empty")
	case in.Description == "":
		return nil, errors.NewValidationFailedError("description must not be empty")
	case in.Budget < 0:
		return nil, errors.NewValidationFailedError("budget cannot be negative")
	}

	now := s.now()
	task := &models.Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Budget:      in.Budget,
		OwnerID:     in.OwnerID,
		Status:      models.TaskOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, errors.NewInternalError(err)
	}

	if s.index != nil {
		if err := s.index.IndexTask(ctx, task); err != nil {
			s.logger.Warn("Failed to index gig", map[string]interface{}{
				"taskId": task.ID,
				"error":  err,
			})
		}
	}

	s.logger.Info("Gig created", map[string]interface{}{
		"taskId":  task.ID,
		"ownerId": task.OwnerID,
	})
	return task, nil
}
