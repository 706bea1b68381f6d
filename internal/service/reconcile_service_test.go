package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
)

func (s *ServiceTestSuite) TestVerifyRedirectIsIdempotent() {
	order := s.checkedOutOrder()

	first, err := s.reconcile.VerifyRedirect(context.Background(), order.ID, "pay-1", "")
	s.Require().NoError(err)
	s.False(first.AlreadyPaid)
	s.Equal(model.OrderStatusPaid, first.Status)
	paid := s.reload(order.ID)
	s.Require().NotNil(paid.PaidAt)
	s.Require().NotNil(paid.RedirectDocID)
	s.Equal("pay-1", *paid.RedirectDocID)
	// IPN 查詢用的 payment_ref 不被 redirect 覆寫
	s.Equal(*order.SaleUniqID, *paid.PaymentRef)

	s.reconcile.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := s.reconcile.VerifyRedirect(context.Background(), order.ID, "pay-1", "")
	s.Require().NoError(err)
	s.True(second.AlreadyPaid)

	again := s.reload(order.ID)
	s.True(paid.PaidAt.Equal(*again.PaidAt))
	s.Len(s.dispatcher.dispatched(), 1)
}

func (s *ServiceTestSuite) TestVerifyRedirectErrors() {
	_, err := s.reconcile.VerifyRedirect(context.Background(), "", "", "")
	s.ErrorIs(err, apperr.ErrMissingFields)
	s.Equal("Missing orderId", apperr.PublicMessage(err))

	_, err = s.reconcile.VerifyRedirect(context.Background(), "missing", "", "")
	s.ErrorIs(err, apperr.ErrOrderNotFound)
	s.Equal(http.StatusNotFound, apperr.HTTPStatus(err))

	order := s.checkedOutOrder()
	_, err = s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: *order.SaleUniqID, Status: "failed"})
	s.Require().NoError(err)

	// redirect 不能把 FAILED 改成 PAID
	_, err = s.reconcile.VerifyRedirect(context.Background(), order.ID, "", "")
	s.ErrorIs(err, apperr.ErrOrderStateConflict)
	s.Equal(http.StatusBadRequest, apperr.HTTPStatus(err))
	s.Equal(model.OrderStatusFailed, s.reload(order.ID).Status)
}

func (s *ServiceTestSuite) TestHandleIPNMalformedAndUnknown() {
	_, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{Status: "success", DocID: "d"})
	s.ErrorIs(err, apperr.ErrWebhookMalformed)
	s.Equal(http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: "nope", Status: "success"})
	s.ErrorIs(err, apperr.ErrOrderNotFound)
}

func (s *ServiceTestSuite) TestHandleIPNSuccessIsIdempotent() {
	order := s.checkedOutOrder()
	payload := IPNPayload{SaleUniqID: *order.SaleUniqID, DocID: "doc-9", DocNumber: "1001", Status: "success"}

	first, err := s.reconcile.HandleIPN(context.Background(), payload)
	s.Require().NoError(err)
	s.True(first.Changed)
	s.Equal(model.OrderStatusPaid, first.Status)
	paid := s.reload(order.ID)
	s.Equal("doc-9", *paid.PaymentRef)
	s.Equal(*order.SaleUniqID, *paid.SaleUniqID)

	second, err := s.reconcile.HandleIPN(context.Background(), payload)
	s.Require().NoError(err)
	s.False(second.Changed)
	s.Equal(model.OrderStatusPaid, second.Status)

	again := s.reload(order.ID)
	s.Equal("doc-9", *again.PaymentRef)
	s.True(paid.PaidAt.Equal(*again.PaidAt))

	events := s.dispatcher.dispatched()
	s.Require().Len(events, 1)
	s.Equal(order.ID, events[0].OrderID)
	s.Equal(4, events[0].NumItems)
	s.True(order.Total.Equal(events[0].Value))
}

func (s *ServiceTestSuite) TestHandleIPNMatchesByDocIDAndUniqID() {
	order := s.checkedOutOrder()
	_, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{UniqID: *order.SaleUniqID, ConfirmationCode: "0012345"})
	s.Require().NoError(err)
	paid := s.reload(order.ID)
	s.Equal(model.OrderStatusPaid, paid.Status)
	// 沒有 doc_id 時 payment_ref 用 sale_uniqid
	s.Equal(*order.SaleUniqID, *paid.PaymentRef)

	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: *paid.PaymentRef, Status: "success"})
	s.Require().NoError(err)
	s.Equal(order.ID, result.OrderID)
}

// 先收到失敗通知，之後的成功通知可以修正成 PAID
func (s *ServiceTestSuite) TestHandleIPNFailureThenSuccess() {
	order := s.checkedOutOrder()
	ref := *order.SaleUniqID

	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: ref, Status: "failed"})
	s.Require().NoError(err)
	s.Equal(model.OrderStatusFailed, result.Status)
	s.Empty(s.dispatcher.dispatched())

	result, err = s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: ref, Status: "success", DocID: "doc-1"})
	s.Require().NoError(err)
	s.True(result.Changed)
	s.Equal(model.OrderStatusPaid, s.reload(order.ID).Status)
	s.Len(s.dispatcher.dispatched(), 1)

	// 付款後才到的失敗通知不影響
	result, err = s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: ref, Status: "failed"})
	s.Require().NoError(err)
	s.False(result.Changed)
	s.Equal(model.OrderStatusPaid, s.reload(order.ID).Status)
}

func (s *ServiceTestSuite) TestHandleIPNKeepsAdminStatus() {
	order := s.checkedOutOrder()
	_, err := s.admin.UpdateOrderStatus(context.Background(), order.ID, "CANCELLED")
	s.Require().NoError(err)

	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: *order.SaleUniqID, Status: "success"})
	s.Require().NoError(err)
	s.False(result.Changed)
	s.Equal(model.OrderStatusCancelled, result.Status)
	s.Equal(model.OrderStatusCancelled, s.reload(order.ID).Status)
	s.Empty(s.dispatcher.dispatched())
}

func (s *ServiceTestSuite) TestRedirectThenIPNKeepsPaidAt() {
	order := s.checkedOutOrder()
	_, err := s.reconcile.VerifyRedirect(context.Background(), order.ID, "", "")
	s.Require().NoError(err)
	paidAt := *s.reload(order.ID).PaidAt

	s.reconcile.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: *order.SaleUniqID, Status: "success", DocID: "doc-5"})
	s.Require().NoError(err)
	s.False(result.Changed)

	got := s.reload(order.ID)
	s.True(paidAt.Equal(*got.PaidAt))
	s.Equal(model.OrderStatusPaid, got.Status)
	s.Require().NotNil(got.PaymentRef)
	s.Equal("doc-5", *got.PaymentRef)
	s.Len(s.dispatcher.dispatched(), 1)

	// 之後以 doc_id 來的重送仍找得到訂單
	result, err = s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: "doc-5", Status: "success"})
	s.Require().NoError(err)
	s.Equal(order.ID, result.OrderID)
	s.Len(s.dispatcher.dispatched(), 1)
}

// 重試後在新的付款頁付款，redirect 先到，IPN 帶的是第二個 sale_uniqid
func (s *ServiceTestSuite) TestRetryRedirectThenIPNFindsOrder() {
	order := s.checkedOutOrder()
	retry, err := s.checkout.RetryPayment(context.Background(), order.ID)
	s.Require().NoError(err)
	secondSale := retry.SaleUniqID
	s.NotEqual(*order.SaleUniqID, secondSale)

	_, err = s.reconcile.VerifyRedirect(context.Background(), order.ID, "pay-7", "doc-9")
	s.Require().NoError(err)

	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: secondSale, Status: "success", DocID: "doc-9"})
	s.Require().NoError(err)
	s.Equal(order.ID, result.OrderID)
	s.Equal(model.OrderStatusPaid, result.Status)

	got := s.reload(order.ID)
	s.Equal("doc-9", *got.PaymentRef)
	s.Equal("doc-9", *got.RedirectDocID)
	s.Len(s.dispatcher.dispatched(), 1)
}

// 兩次重試後在中間那個付款頁付款，沒有 redirect 只有 IPN
func (s *ServiceTestSuite) TestIPNForEarlierAttemptAfterRetries() {
	order := s.checkedOutOrder()
	middle, err := s.checkout.RetryPayment(context.Background(), order.ID)
	s.Require().NoError(err)
	_, err = s.checkout.RetryPayment(context.Background(), order.ID)
	s.Require().NoError(err)

	result, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: middle.SaleUniqID, Status: "success"})
	s.Require().NoError(err)
	s.True(result.Changed)
	s.Equal(model.OrderStatusPaid, s.reload(order.ID).Status)
	s.Len(s.dispatcher.dispatched(), 1)
}

// redirect 與 IPN 同時到，只會有一個真的轉成 PAID
func (s *ServiceTestSuite) TestConcurrentConfirmationsDispatchOnce() {
	order := s.checkedOutOrder()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.reconcile.VerifyRedirect(context.Background(), order.ID, "", "")
			s.NoError(err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.reconcile.HandleIPN(context.Background(), IPNPayload{SaleUniqID: *order.SaleUniqID, Status: "success"})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(model.OrderStatusPaid, s.reload(order.ID).Status)
	s.Len(s.dispatcher.dispatched(), 1)
}

func (s *ServiceTestSuite) TestIPNPayloadHelpers() {
	s.Equal("a", IPNPayload{SaleUniqID: " a ", UniqID: "b"}.CorrelationID())
	s.Equal("b", IPNPayload{UniqID: "b"}.CorrelationID())
	s.True(IPNPayload{Status: "success"}.Succeeded())
	s.True(IPNPayload{ConfirmationCode: "123"}.Succeeded())
	s.False(IPNPayload{Status: "failed"}.Succeeded())
	s.False(IPNPayload{ConfirmationCode: "0"}.Succeeded())
	s.False(IPNPayload{ConfirmationCode: " "}.Succeeded())
}
