package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseEvent 付款確認後送到行銷分析服務的事件
// 個資在送出前才做 hash，事件本身保留原始值
type PurchaseEvent struct {
	EventID    string            `json:"event_id"`
	OrderID    string            `json:"order_id"`
	Value      decimal.Decimal   `json:"value"`
	Currency   string            `json:"currency"`
	Contents   []PurchaseContent `json:"contents"`
	NumItems   int               `json:"num_items"`
	User       PurchaseUser      `json:"user"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type PurchaseContent struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type PurchaseUser struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
}

func (e PurchaseEvent) ContentIDs() []string {
	ids := make([]string, 0, len(e.Contents))
	for _, c := range e.Contents {
		ids = append(ids, c.ID)
	}
	return ids
}

func NewPurchaseEvent(order *Order, occurredAt time.Time) PurchaseEvent {
	contents := make([]PurchaseContent, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		contents = append(contents, PurchaseContent{ID: item.ProductID, Quantity: item.Quantity})
	}
	return PurchaseEvent{
		EventID:  order.ID,
		OrderID:  order.ID,
		Value:    order.Total,
		Currency: "ILS",
		Contents: contents,
		NumItems: order.ItemCount(),
		User: PurchaseUser{
			Email:     order.Email,
			Phone:     order.Phone,
			FirstName: order.FirstName,
			LastName:  order.LastName,
			City:      order.City,
		},
		OccurredAt: occurredAt,
	}
}
