package service

import (
	"context"
	"errors"
	"sync"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func (s *ServiceTestSuite) TestCreateOrderPersistsPendingWithItems() {
	order, reused, err := s.orders.CreateOrder(context.Background(), validRequest())
	s.Require().NoError(err)
	s.False(reused)
	s.NotEmpty(order.ID)

	got := s.reload(order.ID)
	s.Equal(model.OrderStatusPending, got.Status)
	s.Len(got.OrderItems, 4)
	s.True(decimal.NewFromInt(316).Equal(got.Subtotal))
	s.True(decimal.NewFromInt(301).Equal(got.Total))
	s.True(decimal.NewFromInt(45).Equal(got.BundleDiscount))
	s.Require().NotNil(got.ShippingMethod)
	s.Equal(model.ShippingMethodDelivery, *got.ShippingMethod)
	s.Nil(got.PickupPointCode)
	s.Nil(got.IdempotencyKey)

	// items + shipping - discount == total
	s.True(got.ItemsSubtotal().Add(got.ShippingCost).Sub(got.BundleDiscount).Equal(got.Total))
}

func (s *ServiceTestSuite) TestCreateOrderFillsMissingItemNames() {
	req := validRequest()
	req.Items[0].Name = ""

	order, _, err := s.orders.CreateOrder(context.Background(), req)
	s.Require().NoError(err)
	product, _ := s.catalog.Product("ai-book")
	s.Equal(product.Name, s.reload(order.ID).OrderItems[0].ProductName)
}

func (s *ServiceTestSuite) TestCreateOrderValidation() {
	testCases := []struct {
		name   string
		mutate func(r *CheckoutRequest)
		want   *apperr.Error
	}{
		{"missing first name", func(r *CheckoutRequest) { r.FirstName = "" }, apperr.ErrMissingFields},
		{"blank address", func(r *CheckoutRequest) { r.Address = "   " }, apperr.ErrMissingFields},
		{"missing phone", func(r *CheckoutRequest) { r.Phone = "" }, apperr.ErrMissingFields},
		{"bad email", func(r *CheckoutRequest) { r.Email = "not-an-email" }, apperr.ErrMissingFields},
		{"empty items", func(r *CheckoutRequest) { r.Items = nil }, apperr.ErrEmptyOrder},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, apperr.ErrInvalidItem},
		{"negative price", func(r *CheckoutRequest) { r.Items[0].Price = decimal.NewFromInt(-1) }, apperr.ErrInvalidItem},
		{"unknown product", func(r *CheckoutRequest) { r.Items[0].ProductID = "poster" }, apperr.ErrInvalidItem},
		{"stale price", func(r *CheckoutRequest) { r.Items[0].Price = decimal.NewFromInt(79) }, apperr.ErrInvalidItem},
		{"unknown shipping method", func(r *CheckoutRequest) { r.ShippingMethod = "drone" }, apperr.ErrInvalidItem},
		{"shipping cost mismatch", func(r *CheckoutRequest) {
			r.ShippingCost = decimal.NewFromInt(5)
			r.Total = decimal.NewFromInt(276)
		}, apperr.ErrTotalMismatch},
		{"discount above bundle", func(r *CheckoutRequest) {
			r.BundleDiscount = decimal.NewFromInt(115)
			r.Total = decimal.NewFromInt(231)
		}, apperr.ErrTotalMismatch},
		{"total mismatch", func(r *CheckoutRequest) { r.Total = decimal.NewFromInt(1) }, apperr.ErrTotalMismatch},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			req := validRequest()
			tc.mutate(&req)
			_, _, err := s.orders.CreateOrder(context.Background(), req)
			s.Require().Error(err)
			s.ErrorIs(err, tc.want)
		})
	}
	// 驗證失敗不會留下任何訂單
	s.Zero(s.countOrders())
}

func (s *ServiceTestSuite) TestCreateOrderSmallerDiscountIsAccepted() {
	req := validRequest()
	req.BundleDiscount = decimal.Zero
	req.BundleName = ""
	req.Total = decimal.NewFromInt(346)

	order, _, err := s.orders.CreateOrder(context.Background(), req)
	s.Require().NoError(err)
	s.Nil(s.reload(order.ID).BundleName)
}

func (s *ServiceTestSuite) TestCreateOrderIdempotencyKey() {
	req := validRequest()
	req.IdempotencyKey = "attempt-1"

	first, reused, err := s.orders.CreateOrder(context.Background(), req)
	s.Require().NoError(err)
	s.False(reused)

	second, reused, err := s.orders.CreateOrder(context.Background(), req)
	s.Require().NoError(err)
	s.True(reused)
	s.Equal(first.ID, second.ID)
	s.EqualValues(1, s.countOrders())
}

func (s *ServiceTestSuite) TestCreateOrderConcurrentDoubleSubmit() {
	req := validRequest()
	req.IdempotencyKey = "double-click"

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, _, err := s.orders.CreateOrder(context.Background(), req)
			errs[i] = err
			if order != nil {
				ids[i] = order.ID
			}
		}(i)
	}
	wg.Wait()

	s.NoError(errs[0])
	s.NoError(errs[1])
	s.Equal(ids[0], ids[1])
	s.EqualValues(1, s.countOrders())
}

type failingOrderRepo struct {
	db.IOrderRepository
}

func (f failingOrderRepo) CreateOrderWithItems(ctx context.Context, order *model.Order) error {
	return errors.New("pq: could not serialize access")
}

func (s *ServiceTestSuite) TestCreateOrderPersistenceErrorIsGeneric() {
	orders := NewOrderService(failingOrderRepo{s.orderRepo}, s.catalog, nil, nil, zerolog.Nop())

	_, _, err := orders.CreateOrder(context.Background(), validRequest())
	s.Require().Error(err)
	s.ErrorIs(err, apperr.ErrPersistence)
	s.Equal(500, apperr.HTTPStatus(err))
	s.NotContains(apperr.PublicMessage(err), "pq:")
}

func (s *ServiceTestSuite) TestGetOrderNotFound() {
	_, err := s.orders.GetOrder(context.Background(), "missing")
	s.ErrorIs(err, apperr.ErrOrderNotFound)
}

func (s *ServiceTestSuite) TestBuildLineItems() {
	order, _, err := s.orders.CreateOrder(context.Background(), validRequest())
	s.Require().NoError(err)

	items := BuildLineItems(order)
	s.Len(items, 6)
	discount := items[4]
	s.Equal(constants.BundleDiscountLine, discount.Description)
	s.True(decimal.NewFromInt(-45).Equal(discount.UnitPrice))
	s.Equal(constants.DeliveryLine, items[5].Description)
	s.True(LineItemsTotal(items).Equal(order.Total))
}

func (s *ServiceTestSuite) TestShippingLabels() {
	pickup := model.ShippingMethodPickupPoint
	delivery := model.ShippingMethodDelivery
	name := "Super Pharm"

	testCases := []struct {
		name  string
		order model.Order
		want  string
	}{
		{"no method", model.Order{}, constants.ShippingLine},
		{"delivery", model.Order{ShippingMethod: &delivery}, constants.DeliveryLine},
		{"pickup without name", model.Order{ShippingMethod: &pickup}, constants.PickupPointLine},
		{"pickup with name", model.Order{ShippingMethod: &pickup, PickupPointName: &name}, "נקודת איסוף: Super Pharm"},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			order := tc.order
			order.ShippingCost = decimal.NewFromInt(20)
			items := BuildLineItems(&order)
			s.Require().Len(items, 1)
			s.Equal(tc.want, items[0].Description)
		})
	}
}
