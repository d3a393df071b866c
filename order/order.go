// Package order is the durable ledger of placed and cancelled orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Menu is the fixed set of items that can be ordered.
var Menu = []string{"burger", "fries", "drink"}

const (
	MinQty = 1
	MaxQty = 20
)

type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusCancelled Status = "CANCELLED"
)

var ErrNotFound = errors.New("order not found")

type LineItem struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// Order is one ledger entry. TotalItems is derived at creation and never
// changes afterwards, even when the order is cancelled.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o" json:"-"`

	ID         int64      `bun:"id,pk,autoincrement" json:"id"`
	Status     Status     `bun:"status,notnull" json:"status"`
	TotalItems int        `bun:"total_items,notnull" json:"total_items"`
	LineItems  []LineItem `bun:"line_items,type:jsonb" json:"line_items"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Ledger is the persistence contract for orders. Every mutation is durable
// before the call returns.
type Ledger interface {
	// Create validates the line items and persists a new PLACED order.
	Create(ctx context.Context, items []LineItem) (*Order, error)
	// Cancel sets the order status to CANCELLED. Cancelling an already
	// cancelled order succeeds; an unknown id fails with ErrNotFound.
	Cancel(ctx context.Context, id int64) (*Order, error)
	// ListAll returns every order, newest first (created_at desc, id desc).
	ListAll(ctx context.Context) ([]Order, error)
	// ActiveTotals sums quantities per menu item over PLACED orders only.
	// Every menu item is present in the result, zero-valued if unordered.
	ActiveTotals(ctx context.Context) (map[string]int, error)
}

// ValidateLineItems enforces the menu and quantity constraints shared by
// every Ledger implementation.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return errors.New("order must contain at least one line item")
	}
	for _, li := range items {
		if !onMenu(li.Item) {
			return fmt.Errorf("invalid item %q. Must be one of %v", li.Item, Menu)
		}
		if li.Quantity < MinQty || li.Quantity > MaxQty {
			return fmt.Errorf("invalid quantity %d. Must be between %d and %d", li.Quantity, MinQty, MaxQty)
		}
	}
	return nil
}

func onMenu(item string) bool {
	for _, m := range Menu {
		if m == item {
			return true
		}
	}
	return false
}

func sumQuantities(items []LineItem) int {
	total := 0
	for _, li := range items {
		total += li.Quantity
	}
	return total
}

func zeroTotals() map[string]int {
	totals := make(map[string]int, len(Menu))
	for _, m := range Menu {
		totals[m] = 0
	}
	return totals
}
