package models

import "time"

// DisplayState is what a viewer sees for one print channel of a bill.
type DisplayState string

const (
	StateNoJob    DisplayState = "none"
	StatePending  DisplayState = "pending"
	StatePrinting DisplayState = "printing"
	StateSuccess  DisplayState = "success"
	StateFailed   DisplayState = "failed"
	StateUnknown  DisplayState = "unknown"
)

// DisplayStateOf maps the latest job of a channel to its display state. A nil
// job means nothing was ever printed. Statuses outside the known set map to
// StateUnknown.
func DisplayStateOf(job *PrintJob) DisplayState {
	if job == nil {
		return StateNoJob
	}
	switch job.Status {
	case JobPending:
		return StatePending
	case JobPrinting:
		return StatePrinting
	case JobSuccess:
		return StateSuccess
	case JobFailed:
		return StateFailed
	default:
		return StateUnknown
	}
}

// Settled reports whether the state allows edits and new prints. Unknown
// statuses are not settled: an unrecognised value may still be in flight.
func (d DisplayState) Settled() bool {
	switch d {
	case StateNoJob, StateSuccess, StateFailed:
		return true
	default:
		return false
	}
}

// StatusLabel returns the user-facing text of a display state.
func StatusLabel(d DisplayState) string {
	switch d {
	case StateNoJob:
		return "Not printed yet"
	case StatePending:
		return "Waiting for printer"
	case StatePrinting:
		return "Printing"
	case StateSuccess:
		return "Printed"
	case StateFailed:
		return "Print failed"
	default:
		return "Unknown print status"
	}
}

// JobState is the observed state of the latest job on one channel of a bill.
type JobState struct {
	Channel   Channel      `json:"channel"`
	BillID    string       `json:"billId"`
	JobID     string       `json:"jobId,omitempty"`
	Status    JobStatus    `json:"status,omitempty"`
	State     DisplayState `json:"state"`
	Label     string       `json:"label"`
	UpdatedAt time.Time    `json:"updatedAt,omitempty"`
}

// NewJobState derives the observed state from the latest job (nil when none).
func NewJobState(channel Channel, billID string, job *PrintJob) JobState {
	state := DisplayStateOf(job)
	js := JobState{
		Channel: channel,
		BillID:  billID,
		State:   state,
		Label:   StatusLabel(state),
	}
	if job != nil {
		js.JobID = job.ID
		js.Status = job.Status
		js.UpdatedAt = job.UpdatedAt
		if js.UpdatedAt.IsZero() {
			js.UpdatedAt = job.CreatedAt
		}
	}
	return js
}

// CanMutate reports whether every given channel state is settled.
func CanMutate(states ...JobState) bool {
	for _, s := range states {
		if !s.State.Settled() {
			return false
		}
	}
	return true
}
