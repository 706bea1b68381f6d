package dto

import "github.com/RoyceAzure/lab/bookstore/internal/cart"

type AddCartItemRequest struct {
	ProductID string `json:"productId"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type CartResponse struct {
	Items  []cart.Entry `json:"items"`
	Totals cart.Totals  `json:"totals"`
	Toasts []cart.Toast `json:"toasts"`
	// 這次操作產生的通知
	Toast *cart.Toast `json:"toast,omitempty"`
}

type UndoResponse struct {
	Restored bool `json:"restored"`
	CartResponse
}

type QuoteLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type QuoteRequest struct {
	Items []QuoteLine `json:"items"`
}

func NewCartResponse(snapshot cart.Snapshot, toast *cart.Toast) CartResponse {
	return CartResponse{
		Items:  snapshot.Items,
		Totals: snapshot.Totals,
		Toasts: snapshot.Toasts,
		Toast:  toast,
	}
}
