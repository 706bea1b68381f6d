package service

import (
	"context"
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
)

func (s *ServiceTestSuite) TestCheckoutStoresSaleID() {
	result, err := s.checkout.Checkout(context.Background(), validRequest())
	s.Require().NoError(err)
	s.Equal("https://pay.example/sale-1", result.PaymentURL)
	s.Equal("sale-1", result.SaleUniqID)

	got := s.reload(result.Order.ID)
	s.Equal(model.OrderStatusPending, got.Status)
	s.Require().NotNil(got.SaleUniqID)
	s.Equal("sale-1", *got.SaleUniqID)
	s.Equal("sale-1", *got.PaymentRef)

	req := s.gateway.lastRequest()
	s.Equal(got.ID, req.OrderID)
	s.Equal(testBaseURL+"/payment/success?orderId="+got.ID, req.SuccessURL)
	s.Equal(testBaseURL+"/payment/failed?orderId="+got.ID, req.FailureURL)
	s.Equal(testBaseURL+"/api/v1/payment/ipn", req.IPNURL)
	s.Equal("Dana Levi", req.Customer.Name)
	s.Equal("ILS", req.Currency)
	s.True(LineItemsTotal(req.Items).Equal(got.Total))
}

// 金流登入失敗: 訂單留在 PENDING，回 503 並帶 orderId
func (s *ServiceTestSuite) TestCheckoutGatewayAuthFailureKeepsOrder() {
	s.gateway.setErr(&gateway.GatewayError{Kind: gateway.KindAuth, Op: "login", Msg: "bad credentials"})

	result, err := s.checkout.Checkout(context.Background(), validRequest())
	s.Require().Error(err)
	s.ErrorIs(err, apperr.ErrGatewayAuth)
	s.Equal(http.StatusServiceUnavailable, apperr.HTTPStatus(err))

	orderID := apperr.OrderIDOf(err)
	s.Require().NotEmpty(orderID)
	s.Equal(result.Order.ID, orderID)
	s.Equal(model.OrderStatusPending, s.reload(orderID).Status)
	s.EqualValues(1, s.countOrders())
}

func (s *ServiceTestSuite) TestCheckoutGatewayErrorKinds() {
	testCases := []struct {
		name   string
		kind   gateway.Kind
		want   *apperr.Error
		status int
	}{
		{"unavailable", gateway.KindUnavailable, apperr.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{"rejected", gateway.KindRejected, apperr.ErrGatewayRejected, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.gateway.setErr(&gateway.GatewayError{Kind: tc.kind, Op: "generate_sale", Msg: "invalid phone"})
			_, err := s.checkout.Checkout(context.Background(), validRequest())
			s.ErrorIs(err, tc.want)
			s.Equal(tc.status, apperr.HTTPStatus(err))
			s.NotEmpty(apperr.OrderIDOf(err))
		})
	}
	s.Equal("invalid phone", apperr.PublicMessage(gatewayError(&gateway.GatewayError{Kind: gateway.KindRejected, Msg: "invalid phone"})))
}

func (s *ServiceTestSuite) TestRetryPaymentReusesOrder() {
	s.gateway.setErr(&gateway.GatewayError{Kind: gateway.KindUnavailable, Op: "login"})
	_, err := s.checkout.Checkout(context.Background(), validRequest())
	orderID := apperr.OrderIDOf(err)
	s.Require().NotEmpty(orderID)

	s.gateway.setErr(nil)
	result, err := s.checkout.RetryPayment(context.Background(), orderID)
	s.Require().NoError(err)
	s.Equal(orderID, result.Order.ID)
	s.NotEmpty(result.PaymentURL)
	s.EqualValues(1, s.countOrders())

	// 第二次重試拿到新的 sale，原本的 sale id 保留
	_, err = s.checkout.RetryPayment(context.Background(), orderID)
	s.Require().NoError(err)
	got := s.reload(orderID)
	s.Equal("sale-1", *got.SaleUniqID)
	s.Equal("sale-2", *got.PaymentRef)
}

func (s *ServiceTestSuite) TestRetryPaymentRequiresPending() {
	order := s.checkedOutOrder()
	_, err := s.reconcile.VerifyRedirect(context.Background(), order.ID, "", "")
	s.Require().NoError(err)

	_, err = s.checkout.RetryPayment(context.Background(), order.ID)
	s.ErrorIs(err, apperr.ErrOrderNotPending)
	s.Equal(http.StatusConflict, apperr.HTTPStatus(err))

	_, err = s.checkout.RetryPayment(context.Background(), "missing")
	s.ErrorIs(err, apperr.ErrOrderNotFound)
}

func (s *ServiceTestSuite) TestCheckoutWithKeyAfterPaymentIsNotPending() {
	req := validRequest()
	req.IdempotencyKey = "attempt-7"
	first, err := s.checkout.Checkout(context.Background(), req)
	s.Require().NoError(err)
	_, err = s.reconcile.VerifyRedirect(context.Background(), first.Order.ID, "", "")
	s.Require().NoError(err)

	again, err := s.checkout.Checkout(context.Background(), req)
	s.ErrorIs(err, apperr.ErrOrderNotPending)
	s.Equal(first.Order.ID, apperr.OrderIDOf(err))
	s.True(again.Reused)
	s.EqualValues(1, s.countOrders())
}

func (s *ServiceTestSuite) TestCheckoutEmptyItemsCreatesNothing() {
	req := validRequest()
	req.Items = []CheckoutItem{}

	_, err := s.checkout.Checkout(context.Background(), req)
	s.ErrorIs(err, apperr.ErrEmptyOrder)
	s.Equal(http.StatusBadRequest, apperr.HTTPStatus(err))
	s.Zero(s.countOrders())
	s.Empty(s.gateway.requests)
}
