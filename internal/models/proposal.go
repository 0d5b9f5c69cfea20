// internal/models/proposal.go
package models

import "time"

// ProposalStatus leaves pending at most once, to hired or rejected.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalHired    ProposalStatus = "hired"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is one proposer's bid on a task. There is at most one per
// (TaskID, ProposerID) pair and proposals are never deleted.
type Proposal struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"taskId"`
	ProposerID string         `json:"proposerId"`
	Message    string         `json:"message"`
	Price      int64          `json:"price"`
	Status     ProposalStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`

	// Task is populated on reads that join the referenced task.
	Task *TaskSummary `json:"task,omitempty"`
}
