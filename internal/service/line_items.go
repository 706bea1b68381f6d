package service

import (
	"fmt"

	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/shopspring/decimal"
)

/*
BuildLineItems 付款頁明細
商品逐行列出，有折扣時加一行負數的折扣，有運費時加一行運費
明細加總會等於訂單總額
*/
func BuildLineItems(order *model.Order) []gateway.LineItem {
	items := make([]gateway.LineItem, 0, len(order.OrderItems)+2)
	for _, item := range order.OrderItems {
		items = append(items, gateway.LineItem{
			Description: item.ProductName,
			UnitPrice:   item.Price,
			Quantity:    item.Quantity,
		})
	}

	if order.BundleDiscount.IsPositive() {
		items = append(items, gateway.LineItem{
			Description: constants.BundleDiscountLine,
			UnitPrice:   order.BundleDiscount.Neg(),
			Quantity:    1,
		})
	}

	if order.ShippingCost.IsPositive() {
		items = append(items, gateway.LineItem{
			Description: shippingLabel(order),
			UnitPrice:   order.ShippingCost,
			Quantity:    1,
		})
	}
	return items
}

func shippingLabel(order *model.Order) string {
	if order.ShippingMethod == nil {
		return constants.ShippingLine
	}
	switch *order.ShippingMethod {
	case model.ShippingMethodDelivery:
		return constants.DeliveryLine
	case model.ShippingMethodPickupPoint:
		if order.PickupPointName != nil && *order.PickupPointName != "" {
			return fmt.Sprintf(constants.PickupPointLineName, *order.PickupPointName)
		}
		return constants.PickupPointLine
	default:
		return constants.ShippingLine
	}
}

// LineItemsTotal 明細加總
func LineItemsTotal(items []gateway.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
