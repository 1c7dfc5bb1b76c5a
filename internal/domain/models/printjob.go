package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies one of the two independent print queues of a bill.
type Channel string

const (
	ChannelClient  Channel = "client"
	ChannelKitchen Channel = "kitchen"
)

// Channels lists every print channel in display order.
var Channels = []Channel{ChannelClient, ChannelKitchen}

// ParseChannel converts a path or query value into a Channel.
func ParseChannel(value string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(value))) {
	case ChannelClient:
		return ChannelClient, nil
	case ChannelKitchen:
		return ChannelKitchen, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, value)
	}
}

// JobStatus is the raw status stored on a print job document.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobPrinting JobStatus = "printing"
	JobSuccess  JobStatus = "success"
	JobFailed   JobStatus = "failed"
)

// FailureTimeout is recorded on jobs force-failed because nobody picked them up in time.
const FailureTimeout = "timeout"

// PrintJob is one print request on one channel. Jobs are never deleted or
// reused; printing again always creates a new job. The bill fields are a copy
// taken at submission so the print agent never has to read the bill.
type PrintJob struct {
	ID            string     `bson:"-" json:"id"`
	Channel       Channel    `bson:"-" json:"channel"`
	BillID        string     `bson:"billId" json:"billId"`
	Status        JobStatus  `bson:"status" json:"status"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	CreatedBy     string     `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	UpdatedAt     time.Time  `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	FailureReason string     `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	Code          string     `bson:"code" json:"code"`
	TableNumber   string     `bson:"tableNumber" json:"tableNumber"`
	Note          string     `bson:"note" json:"note"`
	Foods         []BillFood `bson:"foods" json:"foods"`
	Total         int64      `bson:"total" json:"total"`
	AgentSecret   string     `bson:"posSecret,omitempty" json:"-"`
}

// NewPrintJob builds a pending job for the bill on the given channel.
// CreatedAt is left for the store to assign.
func NewPrintJob(channel Channel, bill Bill, actor string) PrintJob {
	return PrintJob{
		Channel:     channel,
		BillID:      bill.ID,
		Status:      JobPending,
		CreatedBy:   actor,
		Code:        bill.Code,
		TableNumber: bill.TableNumber,
		Note:        bill.Note,
		Foods:       CloneFoods(bill.Foods),
		Total:       bill.Total(),
	}
}

// Clone returns a deep copy of the job.
func (j PrintJob) Clone() PrintJob {
	out := j
	out.Foods = CloneFoods(j.Foods)
	return out
}
