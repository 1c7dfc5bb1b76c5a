package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// Store is an in-process document store with the same semantics as the
// MongoDB repository: store-assigned ids and timestamps, ordered queries and
// push subscriptions. It backs local runs (STORE_DRIVER=memory) and tests.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	last   time.Time
	seq    int64
	bills  map[string]models.Bill
	jobs   map[models.Channel][]models.PrintJob
	foods  map[string]models.Food
	hub    *hub
	logger *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for store-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		bills:  make(map[string]models.Bill),
		jobs:   make(map[models.Channel][]models.PrintJob),
		foods:  make(map[string]models.Food),
		hub:    newHub(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

// Close implements repository.Store.
func (s *Store) Close(context.Context) error {
	return nil
}

// stamp returns a store timestamp strictly greater than every previous one.
// Callers hold s.mu for writing.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func billTopic(id string) string {
	return "bill:" + id
}

func jobTopic(channel models.Channel, billID string) string {
	return "jobs:" + string(channel) + ":" + billID
}

// NextBillSequence implements repository.BillStore.
func (s *Store) NextBillSequence(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

// CreateBill implements repository.BillStore.
func (s *Store) CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error) {
	if err := ctx.Err(); err != nil {
		return models.Bill{}, err
	}

	s.mu.Lock()
	stored := bill.Clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.stamp()
	stored.History = []models.BillHistoryEntry{}
	s.bills[stored.ID] = stored
	s.mu.Unlock()

	s.logger.Debug("bill created", zap.String("bill_id", stored.ID), zap.String("code", stored.Code))
	s.hub.publish(billTopic(stored.ID))
	return stored.Clone(), nil
}

// GetBill implements repository.BillStore.
func (s *Store) GetBill(ctx context.Context, id string) (models.Bill, error) {
	if err := ctx.Err(); err != nil {
		return models.Bill{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.bills[id]
	if !ok {
		return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrNotFound)
	}
	return bill.Clone(), nil
}

// ListBills implements repository.BillStore. Newest bills come first.
func (s *Store) ListBills(ctx context.Context) ([]models.Bill, error) {
	return s.ListBillsCreatedBetween(ctx, time.Time{}, time.Time{})
}

// ListBillsCreatedBetween implements repository.BillStore. A zero bound is open.
func (s *Store) ListBillsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Bill, 0, len(s.bills))
	for _, bill := range s.bills {
		if !start.IsZero() && bill.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && !bill.CreatedAt.Before(end) {
			continue
		}
		out = append(out, bill.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendBillRevision implements repository.BillStore.
func (s *Store) AppendBillRevision(ctx context.Context, id string, rev repository.BillRevision) (models.Bill, error) {
	if err := ctx.Err(); err != nil {
		return models.Bill{}, err
	}

	s.mu.Lock()
	current, ok := s.bills[id]
	if !ok {
		s.mu.Unlock()
		return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrNotFound)
	}
	if rev.ExpectedRevision != repository.Unconditional && current.Revision() != rev.ExpectedRevision {
		s.mu.Unlock()
		return models.Bill{}, fmt.Errorf("bill %s at revision %d, expected %d: %w", id, current.Revision(), rev.ExpectedRevision, models.ErrRevisionConflict)
	}

	next := current.Clone()
	entry := rev.Entry
	entry.OldData.Foods = models.CloneFoods(entry.OldData.Foods)
	entry.UpdatedAt = s.stamp()

	next.TableNumber = rev.Fields.TableNumber
	next.Note = rev.Fields.Note
	next.Foods = models.CloneFoods(rev.Fields.Foods)
	next.History = append(next.History, entry)
	s.bills[id] = next
	s.mu.Unlock()

	s.hub.publish(billTopic(id))
	return next.Clone(), nil
}

// WatchBill implements repository.BillStore.
func (s *Store) WatchBill(ctx context.Context, id string, fn func(*models.Bill)) (repository.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch bill %s: nil callback", id)
	}

	return s.hub.subscribe(ctx, billTopic(id), func() {
		s.mu.RLock()
		bill, ok := s.bills[id]
		if ok {
			bill = bill.Clone()
		}
		s.mu.RUnlock()

		if !ok {
			fn(nil)
			return
		}
		fn(&bill)
	}), nil
}

// CreatePrintJob implements repository.PrintJobStore.
func (s *Store) CreatePrintJob(ctx context.Context, job models.PrintJob) (models.PrintJob, error) {
	if err := ctx.Err(); err != nil {
		return models.PrintJob{}, err
	}
	if _, err := models.ParseChannel(string(job.Channel)); err != nil {
		return models.PrintJob{}, err
	}

	s.mu.Lock()
	stored := job.Clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.stamp()
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[job.Channel] = append(s.jobs[job.Channel], stored)
	s.mu.Unlock()

	s.hub.publish(jobTopic(stored.Channel, stored.BillID))
	return stored.Clone(), nil
}

// LatestPrintJob implements repository.PrintJobStore.
func (s *Store) LatestPrintJob(ctx context.Context, channel models.Channel, billID string) (*models.PrintJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(channel, billID), nil
}

func (s *Store) latestLocked(channel models.Channel, billID string) *models.PrintJob {
	var latest *models.PrintJob
	for i := range s.jobs[channel] {
		job := &s.jobs[channel][i]
		if job.BillID != billID {
			continue
		}
		if latest == nil || !job.CreatedAt.Before(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil
	}
	out := latest.Clone()
	return &out
}

// UpdatePrintJobStatus implements repository.PrintJobStore.
func (s *Store) UpdatePrintJobStatus(ctx context.Context, channel models.Channel, jobID string, status models.JobStatus, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	jobs := s.jobs[channel]
	idx := -1
	for i := range jobs {
		if jobs[i].ID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s print job %s: %w", channel, jobID, models.ErrNotFound)
	}
	jobs[idx].Status = status
	jobs[idx].FailureReason = reason
	jobs[idx].UpdatedAt = s.stamp()
	billID := jobs[idx].BillID
	s.mu.Unlock()

	s.hub.publish(jobTopic(channel, billID))
	return nil
}

// FailStalePrintJobs implements repository.PrintJobStore.
func (s *Store) FailStalePrintJobs(ctx context.Context, channel models.Channel, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	var topics []string
	jobs := s.jobs[channel]
	for i := range jobs {
		if jobs[i].Status != models.JobPending || !jobs[i].CreatedAt.Before(before) {
			continue
		}
		jobs[i].Status = models.JobFailed
		jobs[i].FailureReason = models.FailureTimeout
		jobs[i].UpdatedAt = s.stamp()
		topics = append(topics, jobTopic(channel, jobs[i].BillID))
	}
	s.mu.Unlock()

	s.hub.publish(topics...)
	return int64(len(topics)), nil
}

// WatchLatestPrintJob implements repository.PrintJobStore.
func (s *Store) WatchLatestPrintJob(ctx context.Context, channel models.Channel, billID string, fn func(*models.PrintJob)) (repository.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch %s jobs of bill %s: nil callback", channel, billID)
	}
	if _, err := models.ParseChannel(string(channel)); err != nil {
		return nil, err
	}

	return s.hub.subscribe(ctx, jobTopic(channel, billID), func() {
		s.mu.RLock()
		latest := s.latestLocked(channel, billID)
		s.mu.RUnlock()
		fn(latest)
	}), nil
}

// Subscribers returns the number of live subscriptions on a bill's jobs.
func (s *Store) Subscribers(channel models.Channel, billID string) int {
	return s.hub.count(jobTopic(channel, billID))
}

// CreateFood implements repository.FoodStore.
func (s *Store) CreateFood(ctx context.Context, food models.Food) (models.Food, error) {
	if err := ctx.Err(); err != nil {
		return models.Food{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	food.ID = uuid.NewString()
	food.CreatedAt = s.stamp()
	s.foods[food.ID] = food
	return food, nil
}

// ListFoods implements repository.FoodStore. Foods are ordered by name.
func (s *Store) ListFoods(ctx context.Context) ([]models.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Food, 0, len(s.foods))
	for _, food := range s.foods {
		out = append(out, food)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetFoods implements repository.FoodStore. The result follows the order of ids.
func (s *Store) GetFoods(ctx context.Context, ids []string) ([]models.Food, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Food, 0, len(ids))
	for _, id := range ids {
		food, ok := s.foods[id]
		if !ok {
			return nil, fmt.Errorf("food %s: %w", id, models.ErrNotFound)
		}
		out = append(out, food)
	}
	return out, nil
}
