package model

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 待付款
	OrderStatusPaid      OrderStatus = "PAID"      // 已付款
	OrderStatusFailed    OrderStatus = "FAILED"    // 付款失敗
	OrderStatusShipped   OrderStatus = "SHIPPED"   // 已出貨
	OrderStatusDelivered OrderStatus = "DELIVERED" // 已送達
	OrderStatusCancelled OrderStatus = "CANCELLED" // 已取消
)

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusFailed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(allOrderStatuses))
	copy(out, allOrderStatuses)
	return out
}

func (s OrderStatus) IsValid() bool {
	for _, status := range allOrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// Actor 誰在推動狀態轉換
type Actor int

const (
	// 付款回呼 (redirect verify / IPN)
	ActorPayment Actor = iota
	// 後台人工調整，可設定任何合法狀態
	ActorAdmin
)

/*
付款流程只允許:

	PENDING -> PAID
	PENDING -> FAILED
	FAILED  -> PAID   (IPN 修正先前的失敗通知)

後台可以覆寫成任何合法狀態
*/
func CanTransition(from, to OrderStatus, actor Actor) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if actor == ActorAdmin {
		return true
	}
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusFailed
	case OrderStatusFailed:
		return to == OrderStatusPaid
	default:
		return false
	}
}

// PaymentSourcesFor 付款流程要轉到 to 時，允許的來源狀態
func PaymentSourcesFor(to OrderStatus) []OrderStatus {
	sources := make([]OrderStatus, 0, 2)
	for _, from := range allOrderStatuses {
		if CanTransition(from, to, ActorPayment) {
			sources = append(sources, from)
		}
	}
	return sources
}
