package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBillCodePrefix is prepended to the zero-padded bill sequence.
const DefaultBillCodePrefix = "HS"

// BillFood is a line item on a bill. It is a value copy of a Food taken when the
// item was selected, so later menu edits never reach existing bills.
type BillFood struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	Price       int64  `bson:"price" json:"price"`
	Quantity    int    `bson:"quantity" json:"quantity"`
	Description string `bson:"description" json:"description"`
	ImageURL    string `bson:"imageUrl" json:"imageUrl"`
}

// Subtotal returns price times quantity for the line.
func (f BillFood) Subtotal() int64 {
	return f.Price * int64(f.Quantity)
}

// BillFields groups the mutable fields of a bill. Edits replace all of them at once.
type BillFields struct {
	TableNumber string     `json:"tableNumber"`
	Note        string     `json:"note"`
	Foods       []BillFood `json:"foods"`
}

// Validate checks the rules a bill must satisfy before it is created or edited.
func (f BillFields) Validate() error {
	if strings.TrimSpace(f.TableNumber) == "" {
		return fmt.Errorf("%w: table number is required", ErrInvalidBill)
	}
	if len(f.Foods) == 0 {
		return fmt.Errorf("%w: at least one food is required", ErrInvalidBill)
	}
	for i, food := range f.Foods {
		if food.ID == "" {
			return fmt.Errorf("%w: food #%d has no id", ErrInvalidBill, i+1)
		}
		if food.Price < 0 {
			return fmt.Errorf("%w: food %s has a negative price", ErrInvalidBill, food.ID)
		}
		if food.Quantity < 1 {
			return fmt.Errorf("%w: food %s must have a quantity of at least 1", ErrInvalidBill, food.ID)
		}
	}
	return nil
}

// BillSnapshot captures the mutable fields of a bill (plus its code) at one point in time.
type BillSnapshot struct {
	Code        string     `bson:"code" json:"code"`
	TableNumber string     `bson:"tableNumber" json:"tableNumber"`
	Note        string     `bson:"note" json:"note"`
	Foods       []BillFood `bson:"foods" json:"foods"`
}

// BillHistoryEntry is one ledger record: the bill as it was before a mutation.
type BillHistoryEntry struct {
	OldData   BillSnapshot `bson:"oldData" json:"oldData"`
	UpdatedAt time.Time    `bson:"updatedAt" json:"updatedAt"`
	UpdatedBy string       `bson:"updatedBy" json:"updatedBy"`
}

// Bill is a table bill. ID, Code, CreatedAt and CreatedBy never change after
// creation; History only grows.
type Bill struct {
	ID          string             `bson:"-" json:"id"`
	Code        string             `bson:"code" json:"code"`
	TableNumber string             `bson:"tableNumber" json:"tableNumber"`
	Note        string             `bson:"note" json:"note"`
	Foods       []BillFood         `bson:"foods" json:"foods"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	CreatedBy   string             `bson:"createdBy" json:"createdBy"`
	History     []BillHistoryEntry `bson:"history" json:"history"`
}

// Total returns the bill amount in minor currency units.
func (b Bill) Total() int64 {
	return Total(b.Foods)
}

// Revision is the number of edits applied to the bill so far.
func (b Bill) Revision() int {
	return len(b.History)
}

// Snapshot returns a deep copy of the bill's code and mutable fields.
func (b Bill) Snapshot() BillSnapshot {
	return BillSnapshot{
		Code:        b.Code,
		TableNumber: b.TableNumber,
		Note:        b.Note,
		Foods:       CloneFoods(b.Foods),
	}
}

// Fields returns a deep copy of the bill's mutable fields, used to seed an edit form.
func (b Bill) Fields() BillFields {
	return BillFields{
		TableNumber: b.TableNumber,
		Note:        b.Note,
		Foods:       CloneFoods(b.Foods),
	}
}

// Clone returns a deep copy of the bill.
func (b Bill) Clone() Bill {
	out := b
	out.Foods = CloneFoods(b.Foods)
	out.History = make([]BillHistoryEntry, len(b.History))
	for i, entry := range b.History {
		entry.OldData.Foods = CloneFoods(entry.OldData.Foods)
		out.History[i] = entry
	}
	return out
}

// Total sums price times quantity over the given lines.
func Total(foods []BillFood) int64 {
	var total int64
	for _, food := range foods {
		total += food.Subtotal()
	}
	return total
}

// CloneFoods copies a slice of line items. A nil input yields an empty slice so
// stored documents always carry an array.
func CloneFoods(foods []BillFood) []BillFood {
	out := make([]BillFood, len(foods))
	copy(out, foods)
	return out
}

// FormatBillCode renders a sequence number as a bill code, e.g. HS00000042.
func FormatBillCode(prefix string, seq int64) string {
	if prefix == "" {
		prefix = DefaultBillCodePrefix
	}
	return fmt.Sprintf("%s%08d", prefix, seq)
}
