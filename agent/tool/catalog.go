// Package tool declares the attendant's tool catalog and executes tool
// invocations against the order ledger.
package tool

import (
	"github.com/cloudwego/eino/schema"
)

const (
	ToolPlaceOrder       = "place_order"
	ToolCancelOrder      = "cancel_order"
	ToolListActiveOrders = "list_active_orders"
)

// Infos declares the fixed tool set presented to the generation model.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolPlaceOrder,
			Desc: "Places a new food order with the specified items and quantities. Use this tool for new orders.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"line_items": {
					Type:     schema.Array,
					Desc:     "A list of items and quantities for the order.",
					Required: true,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"item": {
								Type:     schema.String,
								Desc:     "The menu item being ordered (burger, fries, or drink).",
								Required: true,
							},
							"quantity": {
								Type:     schema.Integer,
								Desc:     "The quantity of the item being ordered.",
								Required: true,
							},
						},
					},
				},
			}),
		},
		{
			Name: ToolCancelOrder,
			Desc: "Cancels an existing food order using its order ID. Use this tool to cancel a previously placed order.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": {
					Type:     schema.Integer,
					Desc:     "The ID of the order to cancel.",
					Required: true,
				},
			}),
		},
		{
			Name: ToolListActiveOrders,
			Desc: "Retrieves a summary of all current active (placed) orders and their total item counts. Use this when asked about current orders or totals.",
		},
	}
}
