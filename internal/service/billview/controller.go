package billview

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
	"github.com/mamadbah2/restopos/internal/service/ledger"
	"github.com/mamadbah2/restopos/internal/service/printjobs"
)

// Gate is the print state of both channels of a bill and whether edits and
// prints are currently allowed.
type Gate struct {
	BillID    string          `json:"billId"`
	Client    models.JobState `json:"client"`
	Kitchen   models.JobState `json:"kitchen"`
	CanMutate bool            `json:"canMutate"`
}

// Controller combines the ledger and the per-channel trackers. Edits and new
// prints are refused while any channel has a job in flight. The gate is
// advisory: two clients checking at the same instant can both pass it.
type Controller struct {
	ledger   *ledger.Service
	bills    repository.BillStore
	trackers map[models.Channel]*printjobs.Tracker
	logger   *zap.Logger
}

// NewController wires a controller. One tracker per channel is expected.
func NewController(ledgerSvc *ledger.Service, bills repository.BillStore, trackers []*printjobs.Tracker, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	byChannel := make(map[models.Channel]*printjobs.Tracker, len(trackers))
	for _, t := range trackers {
		byChannel[t.Channel()] = t
	}
	return &Controller{
		ledger:   ledgerSvc,
		bills:    bills,
		trackers: byChannel,
		logger:   logger,
	}
}

func (c *Controller) tracker(channel models.Channel) (*printjobs.Tracker, error) {
	t, ok := c.trackers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChannel, channel)
	}
	return t, nil
}

// Gate reads the latest job of the bill on every channel.
func (c *Controller) Gate(ctx context.Context, billID string) (Gate, error) {
	gate := Gate{BillID: billID}
	for _, channel := range models.Channels {
		t, err := c.tracker(channel)
		if err != nil {
			return Gate{}, err
		}
		state, err := t.Latest(ctx, billID)
		if err != nil {
			return Gate{}, err
		}
		switch channel {
		case models.ChannelClient:
			gate.Client = state
		case models.ChannelKitchen:
			gate.Kitchen = state
		}
	}
	gate.CanMutate = models.CanMutate(gate.Client, gate.Kitchen)
	return gate, nil
}

// Latest returns the state of the bill's latest job on one channel.
func (c *Controller) Latest(ctx context.Context, billID string, channel models.Channel) (models.JobState, error) {
	t, err := c.tracker(channel)
	if err != nil {
		return models.JobState{}, err
	}
	return t.Latest(ctx, billID)
}

// Print submits a new job on the channel. Checks run in order: known channel,
// existing bill, explicit confirmation, then no job in flight on any channel.
func (c *Controller) Print(ctx context.Context, billID string, channel models.Channel, confirmed bool, actor string) (models.PrintJob, error) {
	t, err := c.tracker(channel)
	if err != nil {
		return models.PrintJob{}, err
	}
	bill, err := c.ledger.Get(ctx, billID)
	if err != nil {
		return models.PrintJob{}, err
	}
	if !confirmed {
		return models.PrintJob{}, models.ErrConfirmationRequired
	}

	gate, err := c.Gate(ctx, billID)
	if err != nil {
		return models.PrintJob{}, err
	}
	if !gate.CanMutate {
		c.logger.Info("print refused while a job is in flight",
			zap.String("bill_id", billID),
			zap.String("channel", string(channel)),
			zap.String("client_state", string(gate.Client.State)),
			zap.String("kitchen_state", string(gate.Kitchen.State)),
		)
		return models.PrintJob{}, models.ErrMutationLocked
	}

	return t.Submit(ctx, bill, actor)
}

// Edit applies an edit through the ledger once the gate is open.
func (c *Controller) Edit(ctx context.Context, billID string, fields models.BillFields, actor string) (models.Bill, error) {
	gate, err := c.Gate(ctx, billID)
	if err != nil {
		return models.Bill{}, err
	}
	if !gate.CanMutate {
		return models.Bill{}, models.ErrMutationLocked
	}
	return c.ledger.ApplyEdit(ctx, billID, fields, actor)
}

// Open starts a live view of the bill: the bill document and the latest job
// of each channel are observed until the session is closed or ctx ends.
func (c *Controller) Open(ctx context.Context, billID string) (*Session, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	s := newSession(c, billID, cancel)

	for _, channel := range models.Channels {
		t, err := c.tracker(channel)
		if err != nil {
			s.Close()
			return nil, err
		}
		obs, err := t.Observe(sessCtx, billID, s.onJob)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.addObservation(obs)
	}

	stop, err := c.bills.WatchBill(sessCtx, billID, s.onBill)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("watch bill %s: %w", billID, err)
	}
	s.setBillCancel(stop)

	c.logger.Debug("bill view opened", zap.String("bill_id", billID))
	return s, nil
}
