package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunLedger persists orders in Postgres. Identifier assignment is serialized
// by the autoincrement primary key, so concurrent creates never collide.
type BunLedger struct {
	db  *bun.DB
	now func() time.Time
}

func NewBunLedger(db *bun.DB) *BunLedger {
	return &BunLedger{db: db, now: time.Now}
}

// OpenDB connects to Postgres with the bun pgdriver.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Init creates the orders table if it does not exist.
func (l *BunLedger) Init(ctx context.Context) error {
	if _, err := l.db.NewCreateTable().
		Model((*Order)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	return nil
}

func (l *BunLedger) Create(ctx context.Context, items []LineItem) (*Order, error) {
	if err := ValidateLineItems(items); err != nil {
		return nil, err
	}

	ord := &Order{
		Status:     StatusPlaced,
		TotalItems: sumQuantities(items),
		LineItems:  items,
		CreatedAt:  l.now().UTC(),
	}
	if _, err := l.db.NewInsert().
		Model(ord).
		Returning("*").
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return ord, nil
}

func (l *BunLedger) Cancel(ctx context.Context, id int64) (*Order, error) {
	ord := new(Order)
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().
			Model(ord).
			Where("o.id = ?", id).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select order %d: %w", id, err)
		}

		ord.Status = StatusCancelled
		if _, err := tx.NewUpdate().
			Model(ord).
			Column("status").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("cancel order %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

func (l *BunLedger) ListAll(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := l.db.NewSelect().
		Model(&orders).
		Order("created_at DESC").
		Order("id DESC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (l *BunLedger) ActiveTotals(ctx context.Context) (map[string]int, error) {
	var orders []Order
	if err := l.db.NewSelect().
		Model(&orders).
		Where("o.status = ?", StatusPlaced).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select active orders: %w", err)
	}

	totals := zeroTotals()
	for _, ord := range orders {
		for _, li := range ord.LineItems {
			if _, ok := totals[li.Item]; ok {
				totals[li.Item] += li.Quantity
			}
		}
	}
	return totals, nil
}
