// Package dispatch fans a job out over recipients in sequential batches of
// concurrent units. One unit failing never affects its siblings.
package dispatch

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusDelivered Status = "delivered"
	// StatusGenerated means content was built and cached but the push was
	// skipped or failed.
	StatusGenerated Status = "generated"
	StatusCached    Status = "cached"
	StatusError     Status = "error"
	// StatusSkipped marks units never started because the run was cancelled.
	StatusSkipped Status = "skipped"
)

// OK reports whether the status counts as a success.
func (s Status) OK() bool {
	switch s {
	case StatusDelivered, StatusGenerated, StatusCached:
		return true
	default:
		return false
	}
}

type UnitResult struct {
	RecipientID string `json:"recipient_id"`
	Status      Status `json:"status"`
	Detail      string `json:"detail,omitempty"`
}

// Outcome summarizes a run. Results are in input order.
type Outcome struct {
	BatchID      string        `json:"batch_id"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	SkippedCount int           `json:"skipped_count,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Duration     time.Duration `json:"duration"`
	Results      []UnitResult  `json:"results"`
}

// UnitError is a unit failure: an error from the processor or a recovered panic.
type UnitError struct {
	RecipientID string
	Err         error
	Panic       any
}

func (e *UnitError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("unit %s panicked: %v", e.RecipientID, e.Panic)
	}
	return fmt.Sprintf("unit %s: %v", e.RecipientID, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Event types published on the bus.
const (
	EventBatchFinished = "dispatch.batch.finished"
	EventRunFinished   = "dispatch.finished"
)

type BatchEvent struct {
	RunID     string `json:"run_id"`
	Batch     int    `json:"batch"`
	Size      int    `json:"size"`
	Successes int    `json:"successes"`
	Errors    int    `json:"errors"`
}
