package handler

import (
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/service"
	"github.com/go-chi/chi/v5"
)

type CheckoutHandler struct {
	checkoutService service.ICheckoutService
}

func NewCheckoutHandler(checkoutService service.ICheckoutService) *CheckoutHandler {
	if checkoutService == nil {
		panic("checkoutService cannot be nil")
	}
	return &CheckoutHandler{checkoutService: checkoutService}
}

// Checkout POST /checkout
// idempotency key 可以放 body 或 Idempotency-Key header
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(constants.IdempotencyHeader)
	}

	result, err := h.checkoutService.Checkout(r.Context(), req)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, toCheckoutResponse(result))
}

// RetryPayment POST /checkout/{orderId}/retry
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.checkoutService.RetryPayment(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, toCheckoutResponse(result))
}

func toCheckoutResponse(result *service.CheckoutResult) dto.CheckoutResponse {
	return dto.CheckoutResponse{
		Success:    true,
		OrderID:    result.Order.ID,
		PaymentURL: result.PaymentURL,
		SaleUniqID: result.SaleUniqID,
	}
}
