package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
	"github.com/mamadbah2/restopos/internal/repository/memory"
)

func newService(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewService(store, zaptest.NewLogger(t), opts...), store
}

func fields(table, note string, qty int) models.BillFields {
	return models.BillFields{
		TableNumber: table,
		Note:        note,
		Foods:       []models.BillFood{{ID: "f1", Name: "Poulet yassa", Price: 20000, Quantity: qty}},
	}
}

func TestCreateBillAssignsSequentialCodes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.CreateBill(ctx, fields("1", "", 1), "cashier")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	second, err := svc.CreateBill(ctx, fields("2", "", 1), "cashier")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	if first.Code != "HS00000001" || second.Code != "HS00000002" {
		t.Fatalf("codes = %s, %s", first.Code, second.Code)
	}
	if first.CreatedBy != "cashier" || len(first.History) != 0 {
		t.Fatalf("first = %+v", first)
	}
}

func TestCreateBillWithPrefix(t *testing.T) {
	svc, _ := newService(t, WithCodePrefix("TB"))
	bill, err := svc.CreateBill(context.Background(), fields("1", "", 1), "cashier")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	if bill.Code != "TB00000001" {
		t.Fatalf("code = %s", bill.Code)
	}
}

func TestCreateBillRejectsInvalidFields(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.CreateBill(context.Background(), models.BillFields{TableNumber: "1"}, "cashier")
	if !errors.Is(err, models.ErrInvalidBill) {
		t.Fatalf("CreateBill without foods = %v, want ErrInvalidBill", err)
	}
	if bills, _ := store.ListBills(context.Background()); len(bills) != 0 {
		t.Fatalf("invalid bill was stored")
	}
}

// Create with one line at 20000 x 2, then edit the quantity to 3.
func TestApplyEditRecordsPreviousState(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	bill, err := svc.CreateBill(ctx, fields("5", "", 2), "cashier")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	if bill.Total() != 40000 {
		t.Fatalf("total = %d, want 40000", bill.Total())
	}

	updated, err := svc.ApplyEdit(ctx, bill.ID, fields("5", "", 3), "manager")
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}

	if updated.Total() != 60000 {
		t.Fatalf("total after edit = %d, want 60000", updated.Total())
	}
	if updated.Code != bill.Code {
		t.Fatalf("code changed from %s to %s", bill.Code, updated.Code)
	}
	if len(updated.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(updated.History))
	}
	entry := updated.History[0]
	if entry.OldData.Foods[0].Quantity != 2 || entry.UpdatedBy != "manager" || entry.OldData.Code != bill.Code {
		t.Fatalf("history entry = %+v", entry)
	}
	if entry.UpdatedAt.IsZero() {
		t.Fatalf("history entry has no timestamp")
	}
}

func TestHistoryAfterNEdits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	bill, _ := svc.CreateBill(ctx, fields("1", "note-0", 1), "cashier")
	snapshots := []models.BillSnapshot{bill.Snapshot()}

	const edits = 5
	current := bill
	for k := 1; k <= edits; k++ {
		var err error
		current, err = svc.ApplyEdit(ctx, bill.ID, fields(fmt.Sprint(k+1), fmt.Sprintf("note-%d", k), k+1), "waiter")
		if err != nil {
			t.Fatalf("edit %d: %v", k, err)
		}
		snapshots = append(snapshots, current.Snapshot())
	}

	if len(current.History) != edits {
		t.Fatalf("history length = %d, want %d", len(current.History), edits)
	}
	for k, entry := range current.History {
		if !reflect.DeepEqual(entry.OldData, snapshots[k]) {
			t.Fatalf("history[%d] = %+v, want %+v", k, entry.OldData, snapshots[k])
		}
	}

	newestFirst, err := svc.History(ctx, bill.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if newestFirst[0].OldData.Note != "note-4" || newestFirst[edits-1].OldData.Note != "note-0" {
		t.Fatalf("History is not newest first: %+v", newestFirst)
	}
}

func TestApplyEditMissingBill(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ApplyEdit(context.Background(), "gone", fields("1", "", 1), "waiter")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("ApplyEdit(missing) = %v, want ErrNotFound", err)
	}
}

// barrierStore holds every GetBill until the expected number of readers have
// read, so concurrent edits start from the same state.
type barrierStore struct {
	repository.BillStore
	readers sync.WaitGroup
}

func (b *barrierStore) GetBill(ctx context.Context, id string) (models.Bill, error) {
	bill, err := b.BillStore.GetBill(ctx, id)
	b.readers.Done()
	b.readers.Wait()
	return bill, err
}

func concurrentEdits(t *testing.T, strict bool) (models.Bill, models.Bill, []error) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	setup := NewService(store, zaptest.NewLogger(t))
	original, err := setup.CreateBill(ctx, fields("1", "original", 1), "cashier")
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	barrier := &barrierStore{BillStore: store}
	barrier.readers.Add(2)
	svc := NewService(barrier, zaptest.NewLogger(t), WithStrictRevisions(strict))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, note := range []string{"first", "second"} {
		wg.Add(1)
		go func(i int, note string) {
			defer wg.Done()
			_, errs[i] = svc.ApplyEdit(ctx, original.ID, fields("1", note, i+2), fmt.Sprintf("actor-%d", i))
		}(i, note)
	}
	wg.Wait()

	final, err := store.GetBill(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	return original, final, errs
}

func TestConcurrentEditsLastWriterWins(t *testing.T) {
	original, final, errs := concurrentEdits(t, false)

	for i, err := range errs {
		if err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}
	if final.Note != "first" && final.Note != "second" {
		t.Fatalf("final note = %q, want one of the edits", final.Note)
	}
	if len(final.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(final.History))
	}
	// Both edits read the original, so both entries hold it and the overwritten
	// edit's target state appears nowhere in the history.
	for i, entry := range final.History {
		if !reflect.DeepEqual(entry.OldData, original.Snapshot()) {
			t.Fatalf("history[%d] = %+v, want the original snapshot", i, entry.OldData)
		}
	}
}

func TestConcurrentEditsStrictRevisions(t *testing.T) {
	_, final, errs := concurrentEdits(t, true)

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrRevisionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes=%d conflicts=%d, want 1 and 1", successes, conflicts)
	}
	if len(final.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(final.History))
	}
}
