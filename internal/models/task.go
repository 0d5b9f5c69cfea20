// internal/models/task.go
package models

import "time"

// TaskStatus moves only from open to assigned.
type TaskStatus string

const (
	TaskOpen     TaskStatus = "open"
	TaskAssigned TaskStatus = "assigned"
)

// Task is a unit of paid work posted by its owner ("gig").
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Budget      int64      `json:"budget"`
	OwnerID     string     `json:"ownerId"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsOpen reports whether the task still accepts proposals and a hire.
func (t *Task) IsOpen() bool { return t.Status == TaskOpen }

// Summary returns the projection embedded in proposal reads.
func (t *Task) Summary() *TaskSummary {
	return &TaskSummary{
		ID:      t.ID,
		Title:   t.Title,
		Budget:  t.Budget,
		Status:  t.Status,
		OwnerID: t.OwnerID,
	}
}

// TaskSummary is the task projection carried by proposal reads and events.
type TaskSummary struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Budget  int64      `json:"budget"`
	Status  TaskStatus `json:"status"`
	OwnerID string     `json:"ownerId"`
}
