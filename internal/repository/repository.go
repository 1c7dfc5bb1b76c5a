package repository

import (
	"context"
	"time"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

// CancelFunc stops a subscription. It is safe to call more than once and
// returns only after the last callback of the subscription has finished. It
// must not be called from inside that subscription's callback.
type CancelFunc func()

// Unconditional disables the revision check of AppendBillRevision.
const Unconditional = -1

// BillRevision is one ledger write: the new mutable fields plus the history
// entry holding the pre-edit state. The store stamps Entry.UpdatedAt.
type BillRevision struct {
	Fields models.BillFields
	Entry  models.BillHistoryEntry
	// ExpectedRevision, when not Unconditional, makes the write succeed only if
	// the stored bill still has exactly that many history entries.
	ExpectedRevision int
}

// BillStore persists bills and pushes their changes.
type BillStore interface {
	NextBillSequence(ctx context.Context) (int64, error)
	CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error)
	GetBill(ctx context.Context, id string) (models.Bill, error)
	ListBills(ctx context.Context) ([]models.Bill, error)
	ListBillsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Bill, error)
	AppendBillRevision(ctx context.Context, id string, rev BillRevision) (models.Bill, error)
	// WatchBill calls fn with the current bill, then again after every change.
	// fn receives nil when the bill does not exist.
	WatchBill(ctx context.Context, id string, fn func(*models.Bill)) (CancelFunc, error)
}

// PrintJobStore persists the print queues, one per channel.
type PrintJobStore interface {
	CreatePrintJob(ctx context.Context, job models.PrintJob) (models.PrintJob, error)
	// LatestPrintJob returns the job of the bill with the greatest createdAt on
	// the channel, or nil when the bill has never been printed there.
	LatestPrintJob(ctx context.Context, channel models.Channel, billID string) (*models.PrintJob, error)
	UpdatePrintJobStatus(ctx context.Context, channel models.Channel, jobID string, status models.JobStatus, reason string) error
	// FailStalePrintJobs marks every job still pending and created before the
	// cutoff as failed, returning how many were changed.
	FailStalePrintJobs(ctx context.Context, channel models.Channel, before time.Time) (int64, error)
	// WatchLatestPrintJob calls fn with the latest job of the bill on the
	// channel (nil when none), then again after every change to that bill's jobs.
	WatchLatestPrintJob(ctx context.Context, channel models.Channel, billID string, fn func(*models.PrintJob)) (CancelFunc, error)
}

// FoodStore persists the menu.
type FoodStore interface {
	CreateFood(ctx context.Context, food models.Food) (models.Food, error)
	ListFoods(ctx context.Context) ([]models.Food, error)
	GetFoods(ctx context.Context, ids []string) ([]models.Food, error)
}

// Store is the full document store used by the application.
type Store interface {
	BillStore
	PrintJobStore
	FoodStore
	Close(ctx context.Context) error
}
