package service

import (
	"context"
	"net/http"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/redis_repo"
	"github.com/rs/zerolog"
)

func (s *ServiceTestSuite) TestAdminSessionLifecycle() {
	ctx := context.Background()

	_, err := s.admin.Login(ctx, "wrong")
	s.ErrorIs(err, apperr.ErrUnauthenticated)
	s.Equal(http.StatusUnauthorized, apperr.HTTPStatus(err))

	token, err := s.admin.Login(ctx, "s3cret")
	s.Require().NoError(err)
	s.Len(token, 64)

	ok, err := s.admin.IsAuthenticated(ctx, token)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.admin.IsAuthenticated(ctx, "")
	s.Require().NoError(err)
	s.False(ok)

	s.redis.FastForward(2 * time.Hour)
	ok, err = s.admin.IsAuthenticated(ctx, token)
	s.Require().NoError(err)
	s.False(ok)

	token, err = s.admin.Login(ctx, "s3cret")
	s.Require().NoError(err)
	s.Require().NoError(s.admin.Logout(ctx, token))
	ok, err = s.admin.IsAuthenticated(ctx, token)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceTestSuite) TestAdminWithoutPasswordRejectsEveryone() {
	admin := NewAdminService("", redis_repo.NewAdminSessionRepo(s.rdb), s.orderRepo, s.gateway, time.Hour, zerolog.Nop())
	_, err := admin.Login(context.Background(), "")
	s.ErrorIs(err, apperr.ErrUnauthenticated)
}

func (s *ServiceTestSuite) TestAdminListOrders() {
	ctx := context.Background()
	first := s.checkedOutOrder()
	second := s.checkedOutOrder()
	_, err := s.reconcile.VerifyRedirect(ctx, second.ID, "", "")
	s.Require().NoError(err)

	all, err := s.admin.ListOrders(ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)
	for _, o := range all {
		s.Len(o.OrderItems, 4)
	}

	paid, err := s.admin.ListOrders(ctx, "paid")
	s.Require().NoError(err)
	s.Require().Len(paid, 1)
	s.Equal(second.ID, paid[0].ID)

	pending, err := s.admin.ListOrders(ctx, "PENDING")
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(first.ID, pending[0].ID)

	_, err = s.admin.ListOrders(ctx, "LOST")
	s.ErrorIs(err, apperr.ErrInvalidStatus)
}

func (s *ServiceTestSuite) TestAdminUpdateOrderStatus() {
	ctx := context.Background()
	order := s.checkedOutOrder()

	updated, err := s.admin.UpdateOrderStatus(ctx, order.ID, "SHIPPED")
	s.Require().NoError(err)
	s.Equal(model.OrderStatusShipped, updated.Status)
	s.Equal(model.OrderStatusShipped, s.reload(order.ID).Status)

	// 後台可以改回任何狀態
	_, err = s.admin.UpdateOrderStatus(ctx, order.ID, "PENDING")
	s.Require().NoError(err)

	_, err = s.admin.UpdateOrderStatus(ctx, order.ID, "REFUNDED")
	s.ErrorIs(err, apperr.ErrInvalidStatus)

	_, err = s.admin.UpdateOrderStatus(ctx, "missing", "PAID")
	s.ErrorIs(err, apperr.ErrOrderNotFound)

	_, err = s.admin.UpdateOrderStatus(ctx, "", "PAID")
	s.ErrorIs(err, apperr.ErrMissingFields)
}

func (s *ServiceTestSuite) TestAdminDeleteOrder() {
	ctx := context.Background()
	order := s.checkedOutOrder()

	s.Require().NoError(s.admin.DeleteOrder(ctx, order.ID))
	s.Zero(s.countOrders())

	var items int64
	s.Require().NoError(s.conn.Model(&model.OrderItem{}).Count(&items).Error)
	s.Zero(items)

	s.ErrorIs(s.admin.DeleteOrder(ctx, order.ID), apperr.ErrOrderNotFound)
	s.ErrorIs(s.admin.DeleteOrder(ctx, ""), apperr.ErrMissingFields)
}

func (s *ServiceTestSuite) TestAdminGatewayCheck() {
	s.gateway.pages = []gateway.PayPage{{ID: "6", Name: "books"}}
	result, err := s.admin.GatewayCheck(context.Background())
	s.Require().NoError(err)
	s.Equal("books", result.PayPages[0].Name)

	s.gateway.setErr(&gateway.GatewayError{Kind: gateway.KindAuth, Op: "login", Msg: "missing credentials"})
	_, err = s.admin.GatewayCheck(context.Background())
	s.ErrorIs(err, apperr.ErrGatewayAuth)
	s.Equal(http.StatusServiceUnavailable, apperr.HTTPStatus(err))
}
