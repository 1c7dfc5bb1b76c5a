package printjobs

import (
	"sync"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// Observation is a live subscription to the latest job of one bill on one
// channel. It must be cancelled when no longer needed; cancelling the context
// passed to Observe has the same effect.
type Observation struct {
	tracker  *Tracker
	billID   string
	onChange func(models.JobState)

	mu          sync.Mutex
	current     models.JobState
	closed      bool
	cancelStore repository.CancelFunc
	stopAfter   func() bool
}

// Current returns the most recently observed state.
func (o *Observation) Current() models.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Observation) handle(job *models.PrintJob) {
	state := models.NewJobState(o.tracker.channel, o.billID, job)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.current = state
	o.mu.Unlock()

	o.tracker.govern(o, state)
	if o.onChange != nil {
		o.onChange(state)
	}
}

// Cancel ends the subscription and stops the countdown the observation
// governs. When it returns no further onChange call will be made. It is safe
// to call more than once but not from inside onChange.
func (o *Observation) Cancel() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	cancel := o.cancelStore
	stopAfter := o.stopAfter
	o.mu.Unlock()

	if stopAfter != nil {
		stopAfter()
	}
	if cancel != nil {
		cancel()
	}
	o.tracker.detach(o)
}
