package model

import "time"

// BatchState represents the lifecycle of one recalculation batch.
type BatchState string

const (
	BatchIdle                BatchState = "idle"
	BatchRunning             BatchState = "running"
	BatchCompleted           BatchState = "completed"
	BatchCompletedWithErrors BatchState = "completed_with_errors"
)

// CustomerError records a per-customer failure inside a batch. Failures are
// collected, never propagated, so one customer cannot abort the batch.
type CustomerError struct {
	CustomerID string `json:"customer_id"`
	Err        string `json:"error"`
}

// BatchResult summarizes one scheduler run across a customer set.
type BatchResult struct {
	State      BatchState      `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Cancelled  int             `json:"cancelled"`
	Alerts     int             `json:"alerts"`
	Errors     []CustomerError `json:"errors,omitempty"`
}
