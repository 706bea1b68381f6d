package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/bookstore/internal/worker"
	"github.com/rs/zerolog"
)

type VerifyResult struct {
	OrderID     string
	Status      model.OrderStatus
	AlreadyPaid bool
}

// IPNPayload 金流 server 對 server 的通知，可能是 form 也可能是 json
type IPNPayload struct {
	SaleUniqID       string `json:"sale_uniqid"`
	UniqID           string `json:"uniqid"`
	DocID            string `json:"doc_id"`
	DocNumber        string `json:"doc_number"`
	Status           string `json:"status"`
	ConfirmationCode string `json:"confirmation_code"`
}

func (p IPNPayload) CorrelationID() string {
	if s := strings.TrimSpace(p.SaleUniqID); s != "" {
		return s
	}
	return strings.TrimSpace(p.UniqID)
}

// Succeeded status=success 或有授權碼都算付款成功，授權碼 0 視為沒有
func (p IPNPayload) Succeeded() bool {
	return p.Status == "success" || hasConfirmationCode(p.ConfirmationCode)
}

func hasConfirmationCode(code string) bool {
	switch strings.TrimSpace(code) {
	case "", "0", "false":
		return false
	}
	return true
}

type IPNResult struct {
	OrderID string
	Status  model.OrderStatus
	// 這次通知是否真的改了訂單狀態
	Changed bool
}

type IReconcileService interface {
	VerifyRedirect(ctx context.Context, orderID, paymentID, docID string) (*VerifyResult, error)
	HandleIPN(ctx context.Context, payload IPNPayload) (*IPNResult, error)
}

/*
ReconcileService 付款確認有兩條路: 使用者被導回的 redirect，以及金流的 IPN
兩條路都用同一個條件式更新 (WHERE status IN ...)，誰先到誰生效，另一條只會看到已付款
後台手動設定的狀態不會被付款通知覆寫
*/
type ReconcileService struct {
	orderRepo  db.IOrderRepository
	dispatcher worker.Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewReconcileService(orderRepo db.IOrderRepository, dispatcher worker.Dispatcher, logger zerolog.Logger) *ReconcileService {
	if dispatcher == nil {
		dispatcher = worker.NopDispatcher{}
	}
	return &ReconcileService{
		orderRepo:  orderRepo,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

var _ IReconcileService = (*ReconcileService)(nil)

// VerifyRedirect 只有 PENDING 可以轉成 PAID，已付款視為成功
func (r *ReconcileService) VerifyRedirect(ctx context.Context, orderID, paymentID, docID string) (*VerifyResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.New(apperr.MissingFieldsCode, "Missing orderId")
	}

	now := r.now().UTC()
	change := db.StatusChange{
		From:   []model.OrderStatus{model.OrderStatusPending},
		To:     model.OrderStatusPaid,
		PaidAt: &now,
	}
	// payment_ref 留給 IPN 查詢用，redirect 帶的 id 另外存
	if ref := firstNonEmpty(docID, paymentID); ref != "" {
		change.RedirectDocID = &ref
	}

	ok, err := r.orderRepo.CompareAndSetStatus(ctx, orderID, change)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("verify payment update failed")
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}

	order, err := r.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if ok {
		r.logger.Info().Str("order_id", orderID).Msg("order marked as PAID by redirect")
		r.dispatchPurchase(order, now)
		return &VerifyResult{OrderID: order.ID, Status: model.OrderStatusPaid}, nil
	}

	if order.Status == model.OrderStatusPaid {
		return &VerifyResult{OrderID: order.ID, Status: order.Status, AlreadyPaid: true}, nil
	}

	r.logger.Warn().
		Str("order_id", orderID).
		Str("status", order.Status.String()).
		Msg("redirect verification on order that is not pending")
	return nil, apperr.ErrOrderStateConflict.WithOrderID(order.ID)
}

/*
HandleIPN
成功: PENDING/FAILED -> PAID，paid_at 已有值時保留，payment_ref 改為 doc_id
已經是 PAID 時只補寫 doc_id，不再送事件
失敗: PENDING -> FAILED
條件不符時不改資料，仍然回成功讓金流不要重送
*/
func (r *ReconcileService) HandleIPN(ctx context.Context, payload IPNPayload) (*IPNResult, error) {
	ref := payload.CorrelationID()
	if ref == "" {
		r.logger.Warn().Msg("IPN missing sale_uniqid")
		return nil, apperr.ErrWebhookMalformed
	}

	order, err := r.orderRepo.GetOrderByPaymentRef(ctx, ref)
	if errors.Is(err, db.ErrOrderNotFound) {
		r.logger.Warn().Str("sale_uniqid", ref).Msg("IPN for unknown order")
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}

	now := r.now().UTC()
	var change db.StatusChange
	if payload.Succeeded() {
		paymentRef := firstNonEmpty(payload.DocID, ref)
		change = db.StatusChange{
			From:       model.PaymentSourcesFor(model.OrderStatusPaid),
			To:         model.OrderStatusPaid,
			PaidAt:     &now,
			PaymentRef: &paymentRef,
		}
	} else {
		change = db.StatusChange{
			From: model.PaymentSourcesFor(model.OrderStatusFailed),
			To:   model.OrderStatusFailed,
		}
	}

	ok, err := r.orderRepo.CompareAndSetStatus(ctx, order.ID, change)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID).Msg("IPN status update failed")
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}

	log := r.logger.With().
		Str("order_id", order.ID).
		Str("sale_uniqid", ref).
		Str("doc_number", payload.DocNumber).
		Logger()

	if ok {
		log.Info().Str("status", change.To.String()).Msg("IPN applied")
		if change.To == model.OrderStatusPaid {
			order.Status = model.OrderStatusPaid
			if order.PaidAt == nil {
				order.PaidAt = &now
			}
			order.PaymentRef = change.PaymentRef
			r.dispatchPurchase(order, now)
		}
		return &IPNResult{OrderID: order.ID, Status: change.To, Changed: true}, nil
	}

	// 狀態在讀取後可能又被改過，重讀一次才知道現在是什麼
	current, err := r.loadOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status == model.OrderStatusPaid && change.To == model.OrderStatusPaid:
		// redirect 先轉成 PAID 時，仍要記下金流的 doc_id
		if docID := strings.TrimSpace(payload.DocID); docID != "" && (current.PaymentRef == nil || *current.PaymentRef != docID) {
			updated, err := r.orderRepo.SetPaymentRefIfStatus(ctx, current.ID, model.OrderStatusPaid, docID)
			if err != nil {
				log.Error().Err(err).Msg("IPN payment ref update failed")
				return nil, apperr.Wrap(apperr.PersistenceCode, err)
			}
			if updated {
				current.PaymentRef = &docID
				log.Info().Str("payment_ref", docID).Msg("IPN recorded doc id on paid order")
				break
			}
		}
		log.Info().Str("status", current.Status.String()).Msg("duplicate IPN ignored")
	case current.Status == change.To:
		log.Info().Str("status", current.Status.String()).Msg("duplicate IPN ignored")
	case current.Status == model.OrderStatusPaid:
		log.Info().Msg("late failure IPN ignored, order already paid")
	default:
		log.Warn().
			Str("status", current.Status.String()).
			Str("ipn_status", change.To.String()).
			Msg("IPN does not override manually set status")
	}
	return &IPNResult{OrderID: current.ID, Status: current.Status}, nil
}

func (r *ReconcileService) loadOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := r.orderRepo.GetOrderByID(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}
	return order, nil
}

// 只有真的轉成 PAID 的那一次才送事件
func (r *ReconcileService) dispatchPurchase(order *model.Order, at time.Time) {
	r.dispatcher.Dispatch(model.NewPurchaseEvent(order, at))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
