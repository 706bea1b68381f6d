package db

import (
	"context"
	"errors"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateIdempotentKey = errors.New("idempotency key already used")
)

// StatusChange 條件式更新，只有目前狀態在 From 裡面才會更新
type StatusChange struct {
	From []model.OrderStatus
	To   model.OrderStatus
	// 有值時 paid_at = COALESCE(paid_at, PaidAt)，已付款時間不會被覆寫
	PaidAt        *time.Time
	PaymentRef    *string
	RedirectDocID *string
}

// IOrderRepository Order 相關操作介面
type IOrderRepository interface {
	CreateOrderWithItems(ctx context.Context, order *model.Order) error
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error)
	GetAllOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
	UpdatePaymentRefs(ctx context.Context, id string, saleUniqID, paymentRef string) error
	CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (bool, error)
	SetPaymentRefIfStatus(ctx context.Context, id string, status model.OrderStatus, paymentRef string) (bool, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	HardDeleteOrder(ctx context.Context, id string) error
}
