package menu

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

// Service manages the food catalogue and turns selections into bill lines.
type Service struct {
	foods  repository.FoodStore
	logger *zap.Logger
}

// NewService wires a new menu service instance.
func NewService(foods repository.FoodStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{foods: foods, logger: logger}
}

// List returns the whole menu.
func (s *Service) List(ctx context.Context) ([]models.Food, error) {
	foods, err := s.foods.ListFoods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list foods: %w", err)
	}
	return foods, nil
}

// Create adds a menu item.
func (s *Service) Create(ctx context.Context, food models.Food) (models.Food, error) {
	food.Name = strings.TrimSpace(food.Name)
	if err := food.Validate(); err != nil {
		return models.Food{}, err
	}

	created, err := s.foods.CreateFood(ctx, food)
	if err != nil {
		return models.Food{}, fmt.Errorf("create food %q: %w", food.Name, err)
	}
	s.logger.Info("food created", zap.String("food_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// Lines resolves selections into bill line items. Each line is a copy of the
// food as it is now; later menu changes do not reach it.
func (s *Service) Lines(ctx context.Context, selections []models.FoodSelection) ([]models.BillFood, error) {
	if len(selections) == 0 {
		return []models.BillFood{}, nil
	}

	ids := make([]string, 0, len(selections))
	for _, sel := range selections {
		ids = append(ids, sel.FoodID)
	}

	foods, err := s.foods.GetFoods(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve foods: %w", err)
	}

	lines := make([]models.BillFood, 0, len(selections))
	for i, sel := range selections {
		lines = append(lines, foods[i].LineItem(sel.Quantity))
	}
	return lines, nil
}
