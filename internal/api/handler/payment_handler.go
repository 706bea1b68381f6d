package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/middleware"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/cart"
	"github.com/RoyceAzure/lab/bookstore/internal/service"
	"github.com/rs/zerolog"
)

const maxIPNBody = 64 << 10

type PaymentHandler struct {
	reconcileService service.IReconcileService
	carts            *cart.Registry
}

func NewPaymentHandler(reconcileService service.IReconcileService, carts *cart.Registry) *PaymentHandler {
	if reconcileService == nil {
		panic("reconcileService cannot be nil")
	}
	return &PaymentHandler{reconcileService: reconcileService, carts: carts}
}

/*
Verify POST /payment/verify
使用者從付款頁被導回時呼叫，參數可以放 json body 或 query
付款確認後清空這個 session 的購物車
*/
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyPaymentRequest
	if r.ContentLength != 0 && isJSON(r) {
		if err := response.DecodeJSON(r, &req); err != nil {
			response.ErrorJSON(w, r, err)
			return
		}
	}
	q := r.URL.Query()
	if req.OrderID == "" {
		req.OrderID = q.Get("orderId")
	}
	if req.PaymentID == "" {
		req.PaymentID = q.Get("paymentId")
	}
	if req.DocID == "" {
		req.DocID = q.Get("docId")
	}

	result, err := h.reconcileService.VerifyRedirect(r.Context(), req.OrderID, req.PaymentID, req.DocID)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	h.clearCart(r)

	if result.AlreadyPaid {
		response.SuccessJSON(w, dto.VerifyPaymentResponse{Success: true, AlreadyPaid: true, OrderID: result.OrderID})
		return
	}
	response.SuccessJSON(w, dto.VerifyPaymentResponse{Success: true, OrderID: result.OrderID, Status: result.Status.String()})
}

func (h *PaymentHandler) clearCart(r *http.Request) {
	if h.carts == nil {
		return
	}
	if sessionID, ok := middleware.GetCartSession(r.Context()); ok {
		h.carts.Get(r.Context(), sessionID).ClearCart()
	}
}

/*
IPN POST /payment/ipn
金流會送 form-urlencoded 或 json
處理成功一律回 200，缺 sale_uniqid 回 400，找不到訂單回 404
*/
func (h *PaymentHandler) IPN(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIPNBody)
	payload, err := decodeIPN(r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("unreadable IPN body")
		response.ErrorJSON(w, r, apperr.ErrWebhookMalformed)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("sale_uniqid", payload.CorrelationID()).
		Str("doc_id", payload.DocID).
		Str("status", payload.Status).
		Msg("IPN received")

	if _, err := h.reconcileService.HandleIPN(r.Context(), payload); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.IPNResponse{Success: true})
}

// IPNStatus GET /payment/ipn 給金流設定頁測試用
func (h *PaymentHandler) IPNStatus(w http.ResponseWriter, r *http.Request) {
	response.SuccessJSON(w, dto.IPNStatusResponse{
		Message:   "IPN endpoint active",
		Timestamp: time.Now().UTC(),
	})
}

func decodeIPN(r *http.Request) (service.IPNPayload, error) {
	if isJSON(r) {
		// 數字或字串都可能出現，先讀成 map 再轉字串
		raw := map[string]interface{}{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return service.IPNPayload{}, err
		}
		field := func(key string) string {
			v, ok := raw[key]
			if !ok || v == nil {
				return ""
			}
			switch t := v.(type) {
			case float64:
				return fmt.Sprintf("%.0f", t)
			case bool:
				if !t {
					return ""
				}
			}
			return fmt.Sprint(v)
		}
		return service.IPNPayload{
			SaleUniqID:       field("sale_uniqid"),
			UniqID:           field("uniqid"),
			DocID:            field("doc_id"),
			DocNumber:        field("doc_number"),
			Status:           field("status"),
			ConfirmationCode: field("confirmation_code"),
		}, nil
	}

	if err := r.ParseForm(); err != nil {
		return service.IPNPayload{}, err
	}
	return service.IPNPayload{
		SaleUniqID:       r.PostForm.Get("sale_uniqid"),
		UniqID:           r.PostForm.Get("uniqid"),
		DocID:            r.PostForm.Get("doc_id"),
		DocNumber:        r.PostForm.Get("doc_number"),
		Status:           r.PostForm.Get("status"),
		ConfirmationCode: r.PostForm.Get("confirmation_code"),
	}, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
