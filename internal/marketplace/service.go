// Package marketplace holds the hiring core: proposal submission, the
// hiring transaction and the read projections over tasks and proposals.
package marketplace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gigflow/internal/common/errors"
	"gigflow/internal/common/logger"
	"gigflow/internal/common/metrics"
	"gigflow/internal/models"
	"gigflow/internal/storage"
)

// Notifier delivers a committed hire to the winning proposer.
type Notifier interface {
	Dispatch(ctx context.Context, event *models.HireEvent) error
}

// TaskIndex is the optional full-text index over task titles.
type TaskIndex interface {
	IndexTask(ctx context.Context, task *models.Task) error
	SearchTaskIDs(ctx context.Context, query string) ([]string, error)
}

type Config struct {
	// TransactionTimeout bounds a whole hire, lock wait included.
	TransactionTimeout time.Duration
}

// Service implements every marketplace operation on top of a Store.
type Service struct {
	config   *Config
	store    storage.Store
	notifier Notifier
	index    TaskIndex
	logger   logger.Logger

	newID func() string
	now   func() time.Time

	dispatching sync.WaitGroup
}

// NewService wires the service. notifier and index may be nil.
func NewService(config *Config, store storage.Store, notifier Notifier, index TaskIndex, log logger.Logger) *Service {
	if config == nil {
		config = &Config{}
	}
	if config.TransactionTimeout <= 0 {
		config.TransactionTimeout = 5 * time.Second
	}
	return &Service{
		config:   config,
		store:    store,
		notifier: notifier,
		index:    index,
		logger:   log,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return errors.NewUnauthenticatedError("caller identity is required")
	}
	return nil
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return metrics.Outcome
	}
	return string(errors.Normalize(err).Code)
}
