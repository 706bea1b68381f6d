// Package worker runs post-payment side effects (purchase analytics) outside the request
// path. Dispatch never blocks the caller and never reports an error back to it.
package worker

import (
	"context"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
)

// Sender 真正送出事件的一方，例如 conversions api 或 kafka
type Sender interface {
	SendPurchase(ctx context.Context, event model.PurchaseEvent) error
}

type SenderFunc func(ctx context.Context, event model.PurchaseEvent) error

func (f SenderFunc) SendPurchase(ctx context.Context, event model.PurchaseEvent) error {
	return f(ctx, event)
}

type Dispatcher interface {
	Dispatch(event model.PurchaseEvent)
}

// NopDispatcher 沒有設定分析服務時使用
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(model.PurchaseEvent) {}
