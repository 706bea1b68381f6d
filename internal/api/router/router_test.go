package router

import (
	"net/http"
	"net/url"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/shopspring/decimal"
)

func (s *RouterTestSuite) TestHealthzAndRequestID() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(constants.RequestIDHeader))

	s.redis.Close()
	rec = s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

// 結帳 -> 導回確認 -> 再確認一次
func (s *RouterTestSuite) TestCheckoutThenVerify() {
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)
	s.True(checkout.Success)
	s.Equal("https://pay.example/sale-1", checkout.PaymentURL)
	s.Equal("sale-1", checkout.SaleUniqID)
	s.Equal(model.OrderStatusPending, s.reload(checkout.OrderID).Status)

	rec = s.do(http.MethodPost, "/api/v1/payment/verify?orderId="+checkout.OrderID, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var verify dto.VerifyPaymentResponse
	s.decode(rec, &verify)
	s.True(verify.Success)
	s.False(verify.AlreadyPaid)
	s.Equal("PAID", verify.Status)

	rec = s.do(http.MethodPost, "/api/v1/payment/verify", map[string]string{"orderId": checkout.OrderID})
	s.Require().Equal(http.StatusOK, rec.Code)
	verify = dto.VerifyPaymentResponse{}
	s.decode(rec, &verify)
	s.True(verify.AlreadyPaid)

	rec = s.do(http.MethodPost, "/api/v1/payment/verify", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/payment/verify?orderId=missing", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterTestSuite) TestCheckoutValidationErrors() {
	body := checkoutBody()
	body["items"] = []interface{}{}
	rec := s.do(http.MethodPost, "/api/v1/checkout", body)
	s.Equal(http.StatusBadRequest, rec.Code)
	var errBody response.ErrorBody
	s.decode(rec, &errBody)
	s.NotEmpty(errBody.Error)
	s.Empty(errBody.OrderID)

	body = checkoutBody()
	body["total"] = 1
	rec = s.do(http.MethodPost, "/api/v1/checkout", body)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestCheckoutGatewayFailureReturnsOrderID() {
	s.gateway.setErr(&gateway.GatewayError{Kind: gateway.KindAuth, Op: "login", Msg: "bad credentials"})

	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	var errBody response.ErrorBody
	s.decode(rec, &errBody)
	s.Require().NotEmpty(errBody.OrderID)
	s.NotContains(errBody.Error, "bad credentials")
	s.Equal(model.OrderStatusPending, s.reload(errBody.OrderID).Status)

	s.gateway.setErr(nil)
	rec = s.do(http.MethodPost, "/api/v1/checkout/"+errBody.OrderID+"/retry", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)
	s.Equal(errBody.OrderID, checkout.OrderID)
	s.NotEmpty(checkout.PaymentURL)
}

func (s *RouterTestSuite) TestCheckoutIdempotencyHeader() {
	send := func() dto.CheckoutResponse {
		req := checkoutBody()
		rec := s.doWithHeader(http.MethodPost, "/api/v1/checkout", req, constants.IdempotencyHeader, "attempt-1")
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		var out dto.CheckoutResponse
		s.decode(rec, &out)
		return out
	}
	first := send()
	second := send()
	s.Equal(first.OrderID, second.OrderID)

	var n int64
	s.Require().NoError(s.conn.Model(&model.Order{}).Count(&n).Error)
	s.EqualValues(1, n)
}

func (s *RouterTestSuite) TestCheckoutRateLimit() {
	body := checkoutBody()
	body["total"] = 1
	for i := 0; i < 3; i++ {
		s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/checkout", body).Code)
	}
	rec := s.do(http.MethodPost, "/api/v1/checkout", body)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("1", rec.Header().Get("Retry-After"))

	// 其他路由不受影響
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/products", nil).Code)
}

func (s *RouterTestSuite) TestIPNForm() {
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Require().Equal(http.StatusOK, rec.Code)
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)

	rec = s.postForm("/api/v1/payment/ipn", url.Values{"sale_uniqid": {checkout.SaleUniqID}, "status": {"success"}, "doc_id": {"777"}})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	order := s.reload(checkout.OrderID)
	s.Equal(model.OrderStatusPaid, order.Status)
	s.Equal("777", *order.PaymentRef)

	// 重送不影響
	rec = s.postForm("/api/v1/payment/ipn", url.Values{"sale_uniqid": {checkout.SaleUniqID}, "status": {"failed"}})
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(model.OrderStatusPaid, s.reload(checkout.OrderID).Status)

	rec = s.postForm("/api/v1/payment/ipn", url.Values{"status": {"success"}})
	s.Equal(http.StatusBadRequest, rec.Code)
	var errBody response.ErrorBody
	s.decode(rec, &errBody)
	s.Equal("Missing sale_uniqid", errBody.Error)

	rec = s.postForm("/api/v1/payment/ipn", url.Values{"sale_uniqid": {"unknown"}, "status": {"success"}})
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterTestSuite) TestIPNJSONWithNumericFields() {
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Require().Equal(http.StatusOK, rec.Code)
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)

	rec = s.do(http.MethodPost, "/api/v1/payment/ipn", map[string]interface{}{
		"sale_uniqid":       checkout.SaleUniqID,
		"doc_id":            123456,
		"confirmation_code": 42,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	order := s.reload(checkout.OrderID)
	s.Equal(model.OrderStatusPaid, order.Status)
	s.Equal("123456", *order.PaymentRef)
}

func (s *RouterTestSuite) TestIPNJSONZeroConfirmationCodeIsFailure() {
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Require().Equal(http.StatusOK, rec.Code)
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)

	rec = s.do(http.MethodPost, "/api/v1/payment/ipn", map[string]interface{}{
		"sale_uniqid":       checkout.SaleUniqID,
		"confirmation_code": 0,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(model.OrderStatusFailed, s.reload(checkout.OrderID).Status)
}

func (s *RouterTestSuite) TestIPNStatus() {
	rec := s.do(http.MethodGet, "/api/v1/payment/ipn", nil)
	s.Equal(http.StatusOK, rec.Code)
	var status dto.IPNStatusResponse
	s.decode(rec, &status)
	s.Equal("IPN endpoint active", status.Message)
	s.False(status.Timestamp.IsZero())
}

func (s *RouterTestSuite) TestCatalogAndPickupPoints() {
	rec := s.do(http.MethodGet, "/api/v1/products", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var products dto.ProductsResponse
	s.decode(rec, &products)
	s.NotEmpty(products.Products)

	rec = s.do(http.MethodGet, "/api/v1/products/"+products.Products[0].ID, nil)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/products/poster", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/pickup-points", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var points dto.PickupPointsResponse
	s.decode(rec, &points)
	s.Equal([]string{"Haifa", "Tel Aviv"}, points.Cities)
	s.Len(points.Points, 3)

	rec = s.do(http.MethodGet, "/api/v1/pickup-points?city=tel", nil)
	points = dto.PickupPointsResponse{}
	s.decode(rec, &points)
	s.Empty(points.Cities)
	s.Len(points.Points, 2)

	s.pickup.err = errUpstream
	rec = s.do(http.MethodGet, "/api/v1/pickup-points", nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
	var errBody response.ErrorBody
	s.decode(rec, &errBody)
	s.Equal("Failed to fetch pickup points", errBody.Error)
}

func (s *RouterTestSuite) TestCartFlow() {
	rec := s.do(http.MethodGet, "/api/v1/cart", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	session := cookieNamed(rec, constants.CartSessionCookie)
	s.Require().NotNil(session)
	s.True(session.HttpOnly)

	var c dto.CartResponse
	for _, id := range []string{"ai-book", "encryption-book", "algorithms-book", "ai-workbook"} {
		rec = s.do(http.MethodPost, "/api/v1/cart/items", map[string]string{"productId": id}, session)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		c = dto.CartResponse{}
		s.decode(rec, &c)
		s.Require().NotNil(c.Toast)
	}
	s.Len(c.Items, 4)
	s.True(c.Totals.HasBundle)
	s.True(decimal.NewFromInt(45).Equal(c.Totals.Discount))
	s.True(decimal.NewFromInt(271).Equal(c.Totals.Total))

	rec = s.do(http.MethodPost, "/api/v1/cart/items", map[string]string{"productId": "poster"}, session)
	s.Equal(http.StatusBadRequest, rec.Code)

	// 數量改成 0 等於移除，可以 undo
	rec = s.do(http.MethodPatch, "/api/v1/cart/items/ai-workbook", map[string]int{"quantity": 0}, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	c = dto.CartResponse{}
	s.decode(rec, &c)
	s.Len(c.Items, 3)
	s.Require().NotNil(c.Toast)
	s.True(c.Toast.Undoable)

	rec = s.do(http.MethodPost, "/api/v1/cart/undo/"+c.Toast.ID, nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	var undo dto.UndoResponse
	s.decode(rec, &undo)
	s.True(undo.Restored)
	s.Len(undo.Items, 4)

	rec = s.do(http.MethodPatch, "/api/v1/cart/items/ai-book", map[string]interface{}{}, session)
	s.Equal(http.StatusBadRequest, rec.Code)

	// 另一個 session 看不到這個購物車
	rec = s.do(http.MethodGet, "/api/v1/cart", nil)
	c = dto.CartResponse{}
	s.decode(rec, &c)
	s.Empty(c.Items)

	rec = s.do(http.MethodDelete, "/api/v1/cart", nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	c = dto.CartResponse{}
	s.decode(rec, &c)
	s.Empty(c.Items)
	s.Equal(0, c.Totals.ItemCount)
}

func (s *RouterTestSuite) TestVerifyClearsSessionCart() {
	rec := s.do(http.MethodPost, "/api/v1/cart/items", map[string]string{"productId": "ai-book"})
	session := cookieNamed(rec, constants.CartSessionCookie)
	s.Require().NotNil(session)

	rec = s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)

	rec = s.do(http.MethodPost, "/api/v1/payment/verify?orderId="+checkout.OrderID, nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/cart", nil, session)
	var c dto.CartResponse
	s.decode(rec, &c)
	s.Empty(c.Items)
}

func (s *RouterTestSuite) TestCartQuote() {
	rec := s.do(http.MethodPost, "/api/v1/cart/quote", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "ai-book", "quantity": 1},
			{"productId": "encryption-book", "quantity": 1},
			{"productId": "algorithms-book", "quantity": 1},
		},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var totals struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		Discount decimal.Decimal `json:"bundleDiscount"`
	}
	s.decode(rec, &totals)
	s.True(decimal.NewFromInt(267).Equal(totals.Subtotal))

	rec = s.do(http.MethodPost, "/api/v1/cart/quote", map[string]interface{}{
		"items": []map[string]interface{}{{"productId": "poster", "quantity": 1}},
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterTestSuite) TestAdminFlow() {
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody())
	s.Require().Equal(http.StatusOK, rec.Code)
	var checkout dto.CheckoutResponse
	s.decode(rec, &checkout)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/admin/orders", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/admin/auth", map[string]string{"password": "nope"}).Code)

	rec = s.do(http.MethodPost, "/api/v1/admin/auth", map[string]string{"password": "s3cret"})
	s.Require().Equal(http.StatusOK, rec.Code)
	session := cookieNamed(rec, constants.AdminSessionCookie)
	s.Require().NotNil(session)
	s.True(session.HttpOnly)

	rec = s.do(http.MethodGet, "/api/v1/admin/auth", nil, session)
	var auth dto.AdminAuthResponse
	s.decode(rec, &auth)
	s.True(auth.Authenticated)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders?status=pending", nil, session)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var orders dto.OrdersResponse
	s.decode(rec, &orders)
	s.Require().Len(orders.Orders, 1)
	s.Len(orders.Orders[0].OrderItems, 4)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/admin/orders?status=lost", nil, session).Code)

	rec = s.do(http.MethodPatch, "/api/v1/admin/orders", map[string]string{"orderId": checkout.OrderID, "status": "SHIPPED"}, session)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(model.OrderStatusShipped, s.reload(checkout.OrderID).Status)

	rec = s.do(http.MethodGet, "/api/v1/admin/gateway-check", nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	var check dto.GatewayCheckResponse
	s.decode(rec, &check)
	s.Len(check.PayPages, 1)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/payment/gateway-check", nil, session).Code)

	rec = s.do(http.MethodDelete, "/api/v1/admin/orders?id="+checkout.OrderID, nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/admin/orders?id="+checkout.OrderID, nil, session).Code)

	rec = s.do(http.MethodDelete, "/api/v1/admin/auth", nil, session)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/admin/orders", nil, session).Code)
}
