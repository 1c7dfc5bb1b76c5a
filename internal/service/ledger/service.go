package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// Service applies bill mutations while keeping every bill's history complete.
// Each edit stores the pre-edit state of the bill alongside the new state in
// one write.
//
// By default edits are last-writer-wins: two actors editing from the same
// state both succeed and the second overwrites the first. In strict mode an
// edit only lands if no other edit was applied since the bill was read, and
// fails with models.ErrRevisionConflict otherwise.
type Service struct {
	bills      repository.BillStore
	strict     bool
	codePrefix string
	logger     *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithStrictRevisions turns on conditional edits.
func WithStrictRevisions(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithCodePrefix overrides models.DefaultBillCodePrefix.
func WithCodePrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.codePrefix = prefix
		}
	}
}

// NewService wires a ledger over the bill store.
func NewService(bills repository.BillStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		bills:      bills,
		codePrefix: models.DefaultBillCodePrefix,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strict reports whether conditional edits are enabled.
func (s *Service) Strict() bool {
	return s.strict
}

// CreateBill validates the fields, assigns the next bill code and stores the
// bill with an empty history.
func (s *Service) CreateBill(ctx context.Context, fields models.BillFields, actor string) (models.Bill, error) {
	if err := fields.Validate(); err != nil {
		return models.Bill{}, err
	}

	seq, err := s.bills.NextBillSequence(ctx)
	if err != nil {
		return models.Bill{}, fmt.Errorf("allocate bill code: %w", err)
	}

	bill := models.Bill{
		Code:        models.FormatBillCode(s.codePrefix, seq),
		TableNumber: fields.TableNumber,
		Note:        fields.Note,
		Foods:       models.CloneFoods(fields.Foods),
		CreatedBy:   actor,
	}

	created, err := s.bills.CreateBill(ctx, bill)
	if err != nil {
		return models.Bill{}, fmt.Errorf("create bill %s: %w", bill.Code, err)
	}

	s.logger.Info("bill created",
		zap.String("bill_id", created.ID),
		zap.String("code", created.Code),
		zap.String("actor", actor),
		zap.Int64("total", created.Total()),
	)
	return created, nil
}

// ApplyEdit replaces the mutable fields of a bill and appends the pre-edit
// state to its history. The code never changes. A missing bill yields
// models.ErrNotFound and nothing is written.
func (s *Service) ApplyEdit(ctx context.Context, billID string, fields models.BillFields, actor string) (models.Bill, error) {
	if err := fields.Validate(); err != nil {
		return models.Bill{}, err
	}

	current, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return models.Bill{}, fmt.Errorf("load bill for edit: %w", err)
	}

	rev := repository.BillRevision{
		Fields: models.BillFields{
			TableNumber: fields.TableNumber,
			Note:        fields.Note,
			Foods:       models.CloneFoods(fields.Foods),
		},
		Entry: models.BillHistoryEntry{
			OldData:   current.Snapshot(),
			UpdatedBy: actor,
		},
		ExpectedRevision: repository.Unconditional,
	}
	if s.strict {
		rev.ExpectedRevision = current.Revision()
	}

	updated, err := s.bills.AppendBillRevision(ctx, billID, rev)
	if err != nil {
		return models.Bill{}, fmt.Errorf("apply edit to bill %s: %w", billID, err)
	}

	s.logger.Info("bill edited",
		zap.String("bill_id", billID),
		zap.String("code", updated.Code),
		zap.String("actor", actor),
		zap.Int("revision", updated.Revision()),
	)
	return updated, nil
}

// Get reads one bill.
func (s *Service) Get(ctx context.Context, billID string) (models.Bill, error) {
	bill, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return models.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	return bill, nil
}

// List returns all bills, newest first.
func (s *Service) List(ctx context.Context) ([]models.Bill, error) {
	bills, err := s.bills.ListBills(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

// History returns the bill's history entries, newest first.
func (s *Service) History(ctx context.Context, billID string) ([]models.BillHistoryEntry, error) {
	bill, err := s.Get(ctx, billID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.BillHistoryEntry, 0, len(bill.History))
	for i := len(bill.History) - 1; i >= 0; i-- {
		entries = append(entries, bill.History[i])
	}
	return entries, nil
}
