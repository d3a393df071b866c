package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/trenchburger/attendant/agent/contract"
	orderx "github.com/trenchburger/attendant/order"
)

// Registry executes the declared tools against the order ledger. Domain
// failures (bad arguments, unknown order ids, ledger outages) come back as
// conversational outcome strings so the generation step can react to them;
// only an unregistered tool name is a hard error.
type Registry struct {
	ledger orderx.Ledger
}

func NewRegistry(ledger orderx.Ledger) *Registry {
	return &Registry{ledger: ledger}
}

var _ contractx.Invoker = (*Registry)(nil)

func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolPlaceOrder:
		return r.placeOrder(ctx, args), nil
	case ToolCancelOrder:
		return r.cancelOrder(ctx, args), nil
	case ToolListActiveOrders:
		return r.listActiveOrders(ctx), nil
	default:
		return "", fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
	}
}

type placeOrderArgs struct {
	LineItems []orderx.LineItem `json:"line_items"`
}

type cancelOrderArgs struct {
	OrderID int64 `json:"order_id"`
}

func (r *Registry) placeOrder(ctx context.Context, args map[string]any) string {
	var in placeOrderArgs
	if err := decodeArgs(args, &in); err != nil {
		return fmt.Sprintf("Error placing order: %v", err)
	}
	if err := orderx.ValidateLineItems(in.LineItems); err != nil {
		return fmt.Sprintf("Error placing order: %v", err)
	}

	ord, err := r.ledger.Create(ctx, in.LineItems)
	if err != nil {
		log.Error().Err(err).Msg("place_order: ledger create failed")
		return "Sorry, there was an unexpected error placing your order."
	}
	return fmt.Sprintf(
		"Order placed successfully! Your order ID is %d. Details: %s. Total items: %d.",
		ord.ID, formatLineItems(ord.LineItems), ord.TotalItems,
	)
}

func (r *Registry) cancelOrder(ctx context.Context, args map[string]any) string {
	var in cancelOrderArgs
	if err := decodeArgs(args, &in); err != nil {
		return fmt.Sprintf("Error cancelling order: %v", err)
	}

	if _, err := r.ledger.Cancel(ctx, in.OrderID); err != nil {
		if err == orderx.ErrNotFound {
			return fmt.Sprintf(
				"Could not find an active order with ID %d to cancel. It might already be cancelled or the ID is incorrect.",
				in.OrderID,
			)
		}
		log.Error().Err(err).Int64("order_id", in.OrderID).Msg("cancel_order: ledger cancel failed")
		return fmt.Sprintf("Sorry, there was an unexpected error cancelling order ID %d.", in.OrderID)
	}
	return fmt.Sprintf("Order ID %d has been successfully cancelled.", in.OrderID)
}

func (r *Registry) listActiveOrders(ctx context.Context) string {
	orders, err := r.ledger.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list_active_orders: ledger list failed")
		return "Sorry, there was an error retrieving the current order summary."
	}

	var active []orderx.Order
	for _, ord := range orders {
		if ord.Status == orderx.StatusPlaced {
			active = append(active, ord)
		}
	}
	if len(active) == 0 {
		return "There are currently no active orders."
	}

	totals, err := r.ledger.ActiveTotals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list_active_orders: ledger totals failed")
		return "Sorry, there was an error retrieving the current order summary."
	}

	lines := make([]string, 0, len(active))
	for _, ord := range active {
		lines = append(lines, fmt.Sprintf(
			"  - Order ID %d: %d items (%s)",
			ord.ID, ord.TotalItems, formatLineItems(ord.LineItems),
		))
	}

	var parts []string
	for _, item := range orderx.Menu {
		if qty := totals[item]; qty > 0 {
			parts = append(parts, fmt.Sprintf("%d %ss", qty, item))
		}
	}
	totalSummary := strings.Join(parts, ", ")
	if totalSummary == "" {
		totalSummary = "No items in active orders."
	}

	return fmt.Sprintf(
		"Current Active Orders (%d total):\n%s\n\nTotal Active Items: %s",
		len(active), strings.Join(lines, "\n"), totalSummary,
	)
}

// decodeArgs round-trips the loosely typed argument map through JSON into a
// typed struct, rejecting fields the tool does not declare.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	return nil
}

func formatLineItems(items []orderx.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", li.Quantity, li.Item))
	}
	return strings.Join(parts, ", ")
}
