package billview

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
	"github.com/mamadbah2/restopos/internal/service/printjobs"
)

// Mode is the display mode of a bill view.
type Mode string

const (
	ModeView Mode = "view"
	ModeEdit Mode = "edit"
)

// ViewState is everything a bill screen renders.
type ViewState struct {
	BillID    string             `json:"billId"`
	Bill      *models.Bill       `json:"bill,omitempty"`
	Total     int64              `json:"total"`
	Client    models.JobState    `json:"client"`
	Kitchen   models.JobState    `json:"kitchen"`
	CanMutate bool               `json:"canMutate"`
	Mode      Mode               `json:"mode"`
	Draft     *models.BillFields `json:"draft,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Session is one open bill view. Its state follows the bill and both print
// channels as the store pushes changes. Close must be called when the view
// goes away.
type Session struct {
	controller *Controller
	billID     string
	cancel     context.CancelFunc

	mu           sync.Mutex
	bill         *models.Bill
	client       models.JobState
	kitchen      models.JobState
	seen         map[models.Channel]bool
	mode         Mode
	draft        *models.BillFields
	lastErr      string
	observations []*printjobs.Observation
	stopBill     repository.CancelFunc
	updates      chan ViewState
	closed       bool
}

func newSession(c *Controller, billID string, cancel context.CancelFunc) *Session {
	return &Session{
		controller: c,
		billID:     billID,
		cancel:     cancel,
		client:     models.NewJobState(models.ChannelClient, billID, nil),
		kitchen:    models.NewJobState(models.ChannelKitchen, billID, nil),
		seen:       make(map[models.Channel]bool, len(models.Channels)),
		mode:       ModeView,
		updates:    make(chan ViewState, 1),
	}
}

func (s *Session) addObservation(obs *printjobs.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, obs)
}

func (s *Session) setBillCancel(stop repository.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBill = stop
}

// Updates delivers the latest view state after every change. Only the newest
// state is kept for a slow reader. The channel is closed by Close.
func (s *Session) Updates() <-chan ViewState {
	return s.updates
}

// State returns the current view state.
func (s *Session) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CanMutate reports whether edits and prints are allowed right now. It stays
// false until the bill and both channels have been observed at least once.
func (s *Session) CanMutate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canMutateLocked()
}

func (s *Session) canMutateLocked() bool {
	if s.bill == nil || len(s.seen) < len(models.Channels) {
		return false
	}
	return models.CanMutate(s.client, s.kitchen)
}

func (s *Session) stateLocked() ViewState {
	st := ViewState{
		BillID:    s.billID,
		Client:    s.client,
		Kitchen:   s.kitchen,
		CanMutate: s.canMutateLocked(),
		Mode:      s.mode,
		Error:     s.lastErr,
	}
	if s.bill != nil {
		bill := s.bill.Clone()
		st.Bill = &bill
		st.Total = bill.Total()
	}
	if s.draft != nil {
		draft := *s.draft
		draft.Foods = models.CloneFoods(s.draft.Foods)
		st.Draft = &draft
	}
	return st
}

// publishLocked replaces any unread state with the current one.
func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	st := s.stateLocked()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- st:
	default:
	}
}

func (s *Session) onJob(state models.JobState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state.Channel {
	case models.ChannelClient:
		s.client = state
	case models.ChannelKitchen:
		s.kitchen = state
	default:
		return
	}
	s.seen[state.Channel] = true
	s.publishLocked()
}

func (s *Session) onBill(bill *models.Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bill == nil {
		s.bill = nil
		s.lastErr = models.ErrNotFound.Error()
	} else {
		b := bill.Clone()
		s.bill = &b
		if s.lastErr == models.ErrNotFound.Error() {
			s.lastErr = ""
		}
	}
	s.publishLocked()
}

// Print submits a job on the channel after an explicit confirmation, as long
// as the view's gate is open.
func (s *Session) Print(ctx context.Context, channel models.Channel, confirmed bool, actor string) (models.PrintJob, error) {
	t, err := s.controller.tracker(channel)
	if err != nil {
		return models.PrintJob{}, err
	}
	if !confirmed {
		return models.PrintJob{}, models.ErrConfirmationRequired
	}

	s.mu.Lock()
	if !s.canMutateLocked() {
		s.mu.Unlock()
		return models.PrintJob{}, models.ErrMutationLocked
	}
	bill := s.bill.Clone()
	s.mu.Unlock()

	job, err := t.Submit(ctx, bill, actor)
	if err != nil {
		s.fail(err)
		return models.PrintJob{}, err
	}
	return job, nil
}

// BeginEdit switches the view to edit mode and returns the bill's current
// fields to seed the form.
func (s *Session) BeginEdit() (models.BillFields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bill == nil {
		return models.BillFields{}, models.ErrNotFound
	}
	if !s.canMutateLocked() {
		return models.BillFields{}, models.ErrMutationLocked
	}

	fields := s.bill.Fields()
	draft := fields
	draft.Foods = models.CloneFoods(fields.Foods)
	s.draft = &draft
	s.mode = ModeEdit
	s.lastErr = ""
	s.publishLocked()
	return fields, nil
}

// SubmitEdit applies the edited fields once the gate is still open. On success
// the view returns to read mode; on failure it stays in edit mode with the
// error set.
func (s *Session) SubmitEdit(ctx context.Context, fields models.BillFields, actor string) (models.Bill, error) {
	s.mu.Lock()
	if s.mode != ModeEdit {
		s.mu.Unlock()
		return models.Bill{}, models.ErrNotEditing
	}
	draft := fields
	draft.Foods = models.CloneFoods(fields.Foods)
	s.draft = &draft
	// A print may have started after the form was opened.
	if !s.canMutateLocked() {
		s.lastErr = models.ErrMutationLocked.Error()
		s.publishLocked()
		s.mu.Unlock()
		return models.Bill{}, models.ErrMutationLocked
	}
	s.mu.Unlock()

	updated, err := s.controller.ledger.ApplyEdit(ctx, s.billID, fields, actor)
	if err != nil {
		s.fail(err)
		if !errors.Is(err, models.ErrInvalidBill) {
			s.controller.logger.Warn("bill edit failed", zap.String("bill_id", s.billID), zap.Error(err))
		}
		return models.Bill{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := updated.Clone()
	s.bill = &b
	s.mode = ModeView
	s.draft = nil
	s.lastErr = ""
	s.publishLocked()
	return updated, nil
}

// CancelEdit leaves edit mode without writing anything.
func (s *Session) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEdit {
		return
	}
	s.mode = ModeView
	s.draft = nil
	s.lastErr = ""
	s.publishLocked()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
	s.publishLocked()
}

// Close cancels every subscription of the session and closes Updates. It is
// safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	observations := s.observations
	stopBill := s.stopBill
	s.mu.Unlock()

	for _, obs := range observations {
		obs.Cancel()
	}
	if stopBill != nil {
		stopBill()
	}
	s.cancel()
	close(s.updates)

	s.controller.logger.Debug("bill view closed", zap.String("bill_id", s.billID))
}
