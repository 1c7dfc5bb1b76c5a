package printjobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// DefaultTimeout is how long a job may stay pending before it is force-failed.
const DefaultTimeout = 20 * time.Second

// expireWriteTimeout bounds the re-read and write done when a countdown fires.
const expireWriteTimeout = 10 * time.Second

// Tracker follows the print jobs of one channel. It submits jobs, streams the
// latest job of a bill to observers and force-fails jobs that stay pending
// longer than the timeout.
type Tracker struct {
	channel     models.Channel
	store       repository.PrintJobStore
	timeout     time.Duration
	agentSecret string
	now         func() time.Time
	logger      *zap.Logger

	mu    sync.Mutex
	bills map[string]*billWatch
}

// billWatch groups the live observations of one bill. The most recent
// observation governs the bill's countdown.
type billWatch struct {
	observers []*Observation
	countdown *countdown
}

func (w *billWatch) governor() *Observation {
	if len(w.observers) == 0 {
		return nil
	}
	return w.observers[len(w.observers)-1]
}

type countdown struct {
	jobID   string
	timer   *time.Timer
	stopped bool
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithAgentSecret stamps every submitted job with the secret the print agent checks.
func WithAgentSecret(secret string) Option {
	return func(t *Tracker) {
		t.agentSecret = secret
	}
}

// WithClock overrides the clock used by SweepStale.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker for one channel.
func NewTracker(channel models.Channel, store repository.PrintJobStore, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		channel: channel,
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  logger.With(zap.String("channel", string(channel))),
		bills:   make(map[string]*billWatch),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Channel returns the channel the tracker follows.
func (t *Tracker) Channel() models.Channel {
	return t.channel
}

// Timeout returns the pending timeout in effect.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Submit creates a new pending job for the bill. It does not check for jobs
// already in flight; callers gate on the observed state first.
func (t *Tracker) Submit(ctx context.Context, bill models.Bill, actor string) (models.PrintJob, error) {
	job := models.NewPrintJob(t.channel, bill, actor)
	job.AgentSecret = t.agentSecret

	created, err := t.store.CreatePrintJob(ctx, job)
	if err != nil {
		return models.PrintJob{}, fmt.Errorf("submit %s print of bill %s: %w", t.channel, bill.ID, err)
	}

	t.logger.Info("print job submitted",
		zap.String("bill_id", bill.ID),
		zap.String("job_id", created.ID),
		zap.String("actor", actor),
	)
	return created, nil
}

// Latest reads the current state of the bill's latest job.
func (t *Tracker) Latest(ctx context.Context, billID string) (models.JobState, error) {
	job, err := t.store.LatestPrintJob(ctx, t.channel, billID)
	if err != nil {
		return models.JobState{}, fmt.Errorf("read latest %s job of bill %s: %w", t.channel, billID, err)
	}
	return models.NewJobState(t.channel, billID, job), nil
}

// SweepStale fails every job that has been pending for longer than the timeout,
// whether or not anyone is observing its bill.
func (t *Tracker) SweepStale(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.timeout)
	n, err := t.store.FailStalePrintJobs(ctx, t.channel, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale %s jobs: %w", t.channel, err)
	}
	if n > 0 {
		t.logger.Info("stale print jobs failed", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Observe subscribes to the latest job of the bill. onChange receives the
// derived state first for the current job (StateNoJob when none) and then on
// every change, until the observation is cancelled or ctx ends. Calls to
// onChange are serialised. Starting an observation cancels any countdown
// already running for the bill.
func (t *Tracker) Observe(ctx context.Context, billID string, onChange func(models.JobState)) (*Observation, error) {
	o := &Observation{
		tracker:  t,
		billID:   billID,
		onChange: onChange,
		current:  models.NewJobState(t.channel, billID, nil),
	}

	t.mu.Lock()
	w := t.bills[billID]
	if w == nil {
		w = &billWatch{}
		t.bills[billID] = w
	}
	t.stopCountdownLocked(w)
	w.observers = append(w.observers, o)
	t.mu.Unlock()

	cancel, err := t.store.WatchLatestPrintJob(ctx, t.channel, billID, o.handle)
	if err != nil {
		t.detach(o)
		return nil, fmt.Errorf("observe %s jobs of bill %s: %w", t.channel, billID, err)
	}

	o.mu.Lock()
	o.cancelStore = cancel
	o.stopAfter = context.AfterFunc(ctx, o.Cancel)
	o.mu.Unlock()
	return o, nil
}

// ActiveCountdowns reports how many countdowns are running for the bill: zero or one.
func (t *Tracker) ActiveCountdowns(billID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w := t.bills[billID]; w != nil && w.countdown != nil {
		return 1
	}
	return 0
}

// govern keeps the bill's countdown in line with the state seen by its
// governing observation.
func (t *Tracker) govern(o *Observation, state models.JobState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.bills[o.billID]
	if w == nil || w.governor() != o {
		return
	}
	t.syncCountdownLocked(o.billID, w, state)
}

func (t *Tracker) syncCountdownLocked(billID string, w *billWatch, state models.JobState) {
	if state.State != models.StatePending {
		t.stopCountdownLocked(w)
		return
	}
	if w.countdown != nil && w.countdown.jobID == state.JobID {
		return
	}

	t.stopCountdownLocked(w)
	c := &countdown{jobID: state.JobID}
	c.timer = time.AfterFunc(t.timeout, func() { t.expire(billID, c) })
	w.countdown = c

	t.logger.Debug("countdown started",
		zap.String("bill_id", billID),
		zap.String("job_id", state.JobID),
		zap.Duration("timeout", t.timeout),
	)
}

func (t *Tracker) stopCountdownLocked(w *billWatch) {
	if w.countdown == nil {
		return
	}
	w.countdown.stopped = true
	w.countdown.timer.Stop()
	w.countdown = nil
}

// expire runs when a countdown elapses. The job is failed only if it is still
// the bill's latest job and still pending; a job the agent moved on meanwhile
// is left alone.
func (t *Tracker) expire(billID string, c *countdown) {
	t.mu.Lock()
	w := t.bills[billID]
	if c.stopped || w == nil || w.countdown != c {
		t.mu.Unlock()
		return
	}
	w.countdown = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireWriteTimeout)
	defer cancel()

	logger := t.logger.With(zap.String("bill_id", billID), zap.String("job_id", c.jobID))

	latest, err := t.store.LatestPrintJob(ctx, t.channel, billID)
	if err != nil {
		logger.Error("failed to re-read job on timeout", zap.Error(err))
		return
	}
	if latest == nil || latest.ID != c.jobID || latest.Status != models.JobPending {
		logger.Debug("job settled before timeout write")
		return
	}

	if err := t.store.UpdatePrintJobStatus(ctx, t.channel, latest.ID, models.JobFailed, models.FailureTimeout); err != nil {
		logger.Error("failed to mark job as timed out", zap.Error(err))
		return
	}
	logger.Warn("print job timed out", zap.Duration("timeout", t.timeout))
}

// detach removes an observation. If it governed its bill, the countdown stops
// and the next most recent observation, if any, takes over.
func (t *Tracker) detach(o *Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.bills[o.billID]
	if w == nil {
		return
	}
	wasGovernor := w.governor() == o
	for i, other := range w.observers {
		if other == o {
			w.observers = append(w.observers[:i], w.observers[i+1:]...)
			break
		}
	}
	if !wasGovernor {
		return
	}

	t.stopCountdownLocked(w)
	next := w.governor()
	if next == nil {
		delete(t.bills, o.billID)
		return
	}
	t.syncCountdownLocked(o.billID, w, next.Current())
}
