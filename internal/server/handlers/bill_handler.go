package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/service/billview"
	"github.com/mamadbah2/restopos/internal/service/ledger"
	"github.com/mamadbah2/restopos/internal/service/menu"
)

// BillRequest is the body of bill creation and edits. Foods are taken as
// given; Selections reference menu items and are resolved into copies.
type BillRequest struct {
	TableNumber string                 `json:"tableNumber"`
	Note        string                 `json:"note"`
	Foods       []models.BillFood      `json:"foods"`
	Selections  []models.FoodSelection `json:"selections"`
}

// BillResponse is a bill with its computed total.
type BillResponse struct {
	models.Bill
	Total int64 `json:"total"`
}

func newBillResponse(bill models.Bill) BillResponse {
	return BillResponse{Bill: bill, Total: bill.Total()}
}

// BillHandler serves bills, their history and their print jobs.
type BillHandler struct {
	ledger     *ledger.Service
	menu       *menu.Service
	controller *billview.Controller
	logger     *zap.Logger
}

// NewBillHandler constructs the HTTP handler adapter.
func NewBillHandler(ledgerSvc *ledger.Service, menuSvc *menu.Service, controller *billview.Controller, logger *zap.Logger) *BillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillHandler{ledger: ledgerSvc, menu: menuSvc, controller: controller, logger: logger}
}

func (h *BillHandler) bindFields(c *gin.Context) (models.BillFields, bool) {
	var req BillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("invalid bill payload", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return models.BillFields{}, false
	}

	foods := models.CloneFoods(req.Foods)
	if len(req.Selections) > 0 {
		lines, err := h.menu.Lines(c.Request.Context(), req.Selections)
		if err != nil {
			writeError(c, h.logger, err)
			return models.BillFields{}, false
		}
		foods = append(foods, lines...)
	}

	return models.BillFields{TableNumber: req.TableNumber, Note: req.Note, Foods: foods}, true
}

// List returns every bill, newest first.
func (h *BillHandler) List(c *gin.Context) {
	bills, err := h.ledger.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]BillResponse, 0, len(bills))
	for _, bill := range bills {
		out = append(out, newBillResponse(bill))
	}
	c.JSON(http.StatusOK, out)
}

// Create stores a new bill.
func (h *BillHandler) Create(c *gin.Context) {
	fields, ok := h.bindFields(c)
	if !ok {
		return
	}

	bill, err := h.ledger.CreateBill(c.Request.Context(), fields, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newBillResponse(bill))
}

// Get returns one bill.
func (h *BillHandler) Get(c *gin.Context) {
	bill, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBillResponse(bill))
}

// History returns the bill's history, newest first.
func (h *BillHandler) History(c *gin.Context) {
	entries, err := h.ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Update applies an edit once no print job is in flight.
func (h *BillHandler) Update(c *gin.Context) {
	fields, ok := h.bindFields(c)
	if !ok {
		return
	}

	bill, err := h.controller.Edit(c.Request.Context(), c.Param("id"), fields, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBillResponse(bill))
}

// Print submits a print job on the channel named in the path.
func (h *BillHandler) Print(c *gin.Context) {
	channel, err := models.ParseChannel(c.Param("channel"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))

	job, err := h.controller.Print(c.Request.Context(), c.Param("id"), channel, confirmed, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// PrintStatus returns the state of the bill's latest job on the channel.
func (h *BillHandler) PrintStatus(c *gin.Context) {
	channel, err := models.ParseChannel(c.Param("channel"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	state, err := h.controller.Latest(c.Request.Context(), c.Param("id"), channel)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Gate returns both channel states and whether edits and prints are allowed.
func (h *BillHandler) Gate(c *gin.Context) {
	gate, err := h.controller.Gate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gate)
}
