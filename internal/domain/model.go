package domain

import (
	"encoding/json"
	"time"
)

// Core domain models. API request/response shapes live in the HTTP adapter;
// keep these decoupled where helpful.

// AnalysisKind is the closed set of analyses a caller may request.
type AnalysisKind string

const (
	KindMarketIntelligence AnalysisKind = "market_intelligence"
	KindDueDiligence       AnalysisKind = "due_diligence"
	KindValuation          AnalysisKind = "valuation"
)

// ParseKind validates a caller-supplied kind string.
func ParseKind(s string) (AnalysisKind, error) {
	switch AnalysisKind(s) {
	case KindMarketIntelligence, KindDueDiligence, KindValuation:
		return AnalysisKind(s), nil
	}
	return "", ErrInvalidKind
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal status change.
// running -> running is allowed so a re-delivered dispatch can claim a job
// idempotently.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled || to == StatusFailed
	case StatusRunning:
		return to == StatusRunning || to.Terminal()
	}
	return false
}

// Job is one tracked unit of asynchronous analysis work.
type Job struct {
	ID              string          `json:"id"`
	SubjectID       string          `json:"subjectId"`
	Kind            AnalysisKind    `json:"kind"`
	Params          json.RawMessage `json:"params,omitempty"`
	Status          JobStatus       `json:"status"`
	Progress        int             `json:"progress"`
	PartialOutput   string          `json:"partialOutput,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancelRequested"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// JobUpdate is a field-level merge patch applied by JobStore.Update. Nil
// fields are left untouched so concurrent writers (a worker's progress write
// racing a cancel-flag write) never clobber each other.
type JobUpdate struct {
	Status          *JobStatus
	Progress        *int
	PartialOutput   *string
	Result          json.RawMessage
	Error           *string
	CancelRequested *bool
}

func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.Progress == nil && u.PartialOutput == nil &&
		u.Result == nil && u.Error == nil && u.CancelRequested == nil
}
