// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gigflow/internal/common/errors"
)

const (
	Version = "1.0.0"

	TaskSubmitProposal = "submit-proposal"
	TaskHireProposal   = "hire-proposal"
)

// Bidding returns the activities served by the bidding job workers.
func Bidding() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     Version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Activities: []Activity{
			{
				ID:              TaskSubmitProposal,
				DisplayName:     "Submit Bid",
				Description:     "Records a pending bid from a freelancer on an open gig",
				Category:        "bidding",
				Version:         Version,
				TaskType:        TaskSubmitProposal,
				InputVariables:  []string{"gigId", "bidderId", "message", "price"},
				OutputVariables: []string{"bidId", "gigId", "bidStatus", "createdAt"},
				ErrorCodes: bpmnCodes(
					errors.ErrCodeNotFound,
					errors.ErrCodeSelfBidForbidden,
					errors.ErrCodeTaskClosed,
					errors.ErrCodeDuplicateProposal,
					errors.ErrCodeValidationFailed,
					errors.ErrCodeUnauthenticated,
				),
				Timeout: "10s",
				Retries: errors.GetRetryCount(errors.ErrCodeDuplicateProposal),
			},
			{
				ID:              TaskHireProposal,
				DisplayName:     "Hire Freelancer",
				Description:     "Assigns the gig to one bid and rejects the other pending bids atomically",
				Category:        "bidding",
				Version:         Version,
				TaskType:        TaskHireProposal,
				InputVariables:  []string{"bidId", "ownerId"},
				OutputVariables: []string{"bidId", "gigId", "freelancerId", "bidStatus", "gigStatus", "hiredAt"},
				ErrorCodes: bpmnCodes(
					errors.ErrCodeNotFound,
					errors.ErrCodeForbidden,
					errors.ErrCodeTaskAlreadyAssigned,
					errors.ErrCodeTransactionFailed,
					errors.ErrCodeValidationFailed,
					errors.ErrCodeUnauthenticated,
				),
				Timeout: "15s",
				Retries: errors.GetRetryCount(errors.ErrCodeTransactionFailed),
				Tags:    []string{"transactional"},
			},
		},
	}
}

func bpmnCodes(codes ...errors.ErrorCode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, errors.BPMNErrorMapping[c])
	}
	return out
}

// Lookup returns the activity registered for taskType.
func (r *ActivityRegistry) Lookup(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// Validate checks required fields, duplicate ids and that every declared
// error code is one a worker can actually throw.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	known := make(map[string]bool, len(errors.BPMNErrorMapping))
	for _, code := range errors.BPMNErrorMapping {
		known[code] = true
	}

	ids := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if _, err := time.ParseDuration(activity.Timeout); err != nil {
			return fmt.Errorf("activity %s has invalid timeout %q", activity.ID, activity.Timeout)
		}
		for _, code := range activity.ErrorCodes {
			if !known[code] {
				return fmt.Errorf("activity %s declares unknown error code %s", activity.ID, code)
			}
		}
	}
	return nil
}

// Diff lists the task types present in want but missing or changed in r.
func (r *ActivityRegistry) Diff(want *ActivityRegistry) []string {
	var drift []string
	for _, w := range want.Activities {
		got, ok := r.Lookup(w.TaskType)
		if !ok {
			drift = append(drift, w.TaskType+": missing")
			continue
		}
		if !sameSet(got.ErrorCodes, w.ErrorCodes) {
			drift = append(drift, w.TaskType+": error codes differ")
		}
		if !sameSet(got.InputVariables, w.InputVariables) {
			drift = append(drift, w.TaskType+": input variables differ")
		}
		if got.Retries != w.Retries {
			drift = append(drift, w.TaskType+": retries differ")
		}
	}
	return drift
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes reg as indented JSON, creating parent directories.
func Save(reg *ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
