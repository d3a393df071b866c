package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger keeps orders in memory. Used in tests and when no database
// DSN is configured.
type MemoryLedger struct {
	mu     sync.Mutex
	orders map[int64]*Order
	nextID int64
	now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		orders: make(map[int64]*Order),
		nextID: 1,
		now:    time.Now,
	}
}

func (l *MemoryLedger) Create(_ context.Context, items []LineItem) (*Order, error) {
	if err := ValidateLineItems(items); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ord := &Order{
		ID:         l.nextID,
		Status:     StatusPlaced,
		TotalItems: sumQuantities(items),
		LineItems:  append([]LineItem(nil), items...),
		CreatedAt:  l.now().UTC(),
	}
	l.nextID++
	l.orders[ord.ID] = ord
	return cloneOrder(ord), nil
}

func (l *MemoryLedger) Cancel(_ context.Context, id int64) (*Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ord, ok := l.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	ord.Status = StatusCancelled
	return cloneOrder(ord), nil
}

func (l *MemoryLedger) ListAll(_ context.Context) ([]Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Order, 0, len(l.orders))
	for _, ord := range l.orders {
		out = append(out, *cloneOrder(ord))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (l *MemoryLedger) ActiveTotals(_ context.Context) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := zeroTotals()
	for _, ord := range l.orders {
		if ord.Status != StatusPlaced {
			continue
		}
		for _, li := range ord.LineItems {
			if _, ok := totals[li.Item]; ok {
				totals[li.Item] += li.Quantity
			}
		}
	}
	return totals, nil
}

func cloneOrder(ord *Order) *Order {
	cp := *ord
	cp.LineItems = append([]LineItem(nil), ord.LineItems...)
	return &cp
}
