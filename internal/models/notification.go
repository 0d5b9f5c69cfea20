// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

// HireEventType is the event type observed by real-time clients.
const HireEventType = "hire-notification"

// HireEvent tells a hired proposer that they won a task. It is never
// persisted; a recipient with no live subscription simply misses it.
type HireEvent struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	RecipientID     string      `json:"recipientId"`
	Message         string      `json:"message"`
	Task            TaskSummary `json:"taskSnapshot"`
	ProposalID      string      `json:"proposalId"`
	Price           int64       `json:"price"`
	ProposalMessage string      `json:"proposalMessage"`
	Timestamp       time.Time   `json:"timestamp"`
}

// NewHireEvent builds the event for a committed hire of p on t.
func NewHireEvent(id string, t TaskSummary, p *Proposal, at time.Time) *HireEvent {
	return &HireEvent{
		ID:              id,
		Type:            HireEventType,
		RecipientID:     p.ProposerID,
		Message:         fmt.Sprintf("You have been hired for \"%s\"!", t.Title),
		Task:            t,
		ProposalID:      p.ID,
		Price:           p.Price,
		ProposalMessage: p.Message,
		Timestamp:       at.UTC(),
	}
}
