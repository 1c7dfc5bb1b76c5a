package models

import (
	"fmt"
	"strings"
	"time"
)

// Food is a menu item.
type Food struct {
	ID          string    `bson:"-" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Price       int64     `bson:"price" json:"price"`
	Description string    `bson:"description" json:"description"`
	ImageURL    string    `bson:"imageUrl" json:"imageUrl"`
	Type        string    `bson:"type" json:"type"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// Validate checks the minimal rules for a menu item.
func (f Food) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFood)
	}
	if f.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidFood)
	}
	return nil
}

// LineItem copies the food into a bill line with the given quantity.
// Quantities below one default to one.
func (f Food) LineItem(quantity int) BillFood {
	if quantity < 1 {
		quantity = 1
	}
	return BillFood{
		ID:          f.ID,
		Name:        f.Name,
		Price:       f.Price,
		Quantity:    quantity,
		Description: f.Description,
		ImageURL:    f.ImageURL,
	}
}

// FoodSelection references a menu item by id with the wanted quantity.
type FoodSelection struct {
	FoodID   string `json:"foodId"`
	Quantity int    `json:"quantity"`
}
