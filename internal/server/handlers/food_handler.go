package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/service/menu"
)

// FoodHandler serves the menu.
type FoodHandler struct {
	menu   *menu.Service
	logger *zap.Logger
}

// NewFoodHandler constructs the HTTP handler adapter.
func NewFoodHandler(menuSvc *menu.Service, logger *zap.Logger) *FoodHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FoodHandler{menu: menuSvc, logger: logger}
}

// List returns the menu.
func (h *FoodHandler) List(c *gin.Context) {
	foods, err := h.menu.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, foods)
}

// Create adds a menu item.
func (h *FoodHandler) Create(c *gin.Context) {
	var food models.Food
	if err := c.ShouldBindJSON(&food); err != nil {
		h.logger.Debug("invalid food payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	food.ID = ""

	created, err := h.menu.Create(c.Request.Context(), food)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
