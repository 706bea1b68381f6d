package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/rs/zerolog"
)

const (
	successPath = "/payment/success"
	failurePath = "/payment/failed"
	ipnPath     = "/api/v1/payment/ipn"
)

// PaymentGateway 金流介面，gateway.Client 實作
type PaymentGateway interface {
	CreatePaymentURL(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentPage, error)
	PayPageList(ctx context.Context) ([]gateway.PayPage, error)
}

type CheckoutResult struct {
	Order      *model.Order
	PaymentURL string
	SaleUniqID string
	// 依 idempotency key 找到既有訂單
	Reused bool
}

type ICheckoutService interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	RetryPayment(ctx context.Context, orderID string) (*CheckoutResult, error)
}

type CheckoutService struct {
	orders    IOrderService
	orderRepo db.IOrderRepository
	gateway   PaymentGateway
	baseURL   string
	logger    zerolog.Logger
}

func NewCheckoutService(orders IOrderService, orderRepo db.IOrderRepository, gw PaymentGateway, baseURL string, logger zerolog.Logger) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		orderRepo: orderRepo,
		gateway:   gw,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

var _ ICheckoutService = (*CheckoutService)(nil)

/*
Checkout 建立訂單後向金流要付款頁
金流失敗時訂單維持 PENDING，錯誤帶著 orderId 讓 client 用 RetryPayment 重試
*/
func (c *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	order, reused, err := c.orders.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	if reused && order.Status != model.OrderStatusPending {
		return &CheckoutResult{Order: order, Reused: true}, apperr.ErrOrderNotPending.WithOrderID(order.ID)
	}

	result, err := c.requestPayment(ctx, order)
	if result != nil {
		result.Reused = reused
	}
	return result, err
}

// RetryPayment 對既有的 PENDING 訂單重新產生付款頁，不會建立新訂單
func (c *CheckoutService) RetryPayment(ctx context.Context, orderID string) (*CheckoutResult, error) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return &CheckoutResult{Order: order}, apperr.ErrOrderNotPending.WithOrderID(order.ID)
	}
	return c.requestPayment(ctx, order)
}

func (c *CheckoutService) requestPayment(ctx context.Context, order *model.Order) (*CheckoutResult, error) {
	items := BuildLineItems(order)
	if sum := LineItemsTotal(items); !sum.Equal(order.Total) {
		// 建單時已檢查過，這裡只記錄
		c.logger.Warn().
			Str("order_id", order.ID).
			Str("items_total", sum.String()).
			Str("order_total", order.Total.String()).
			Msg("line items do not add up to order total")
	}

	page, err := c.gateway.CreatePaymentURL(ctx, gateway.PaymentRequest{
		OrderID: order.ID,
		Customer: gateway.Customer{
			Name:    order.FullName(),
			Email:   order.Email,
			Phone:   order.Phone,
			Address: order.Address,
			City:    order.City,
		},
		Items:      items,
		Currency:   constants.CurrencyILS,
		Lang:       constants.GatewayLang,
		SuccessURL: c.callbackURL(successPath, order.ID),
		FailureURL: c.callbackURL(failurePath, order.ID),
		IPNURL:     c.baseURL + ipnPath,
	})
	if err != nil {
		c.logger.Error().Err(err).
			Str("order_id", order.ID).
			Str("gateway_kind", gateway.KindOf(err).String()).
			Msg("payment page generation failed")
		return &CheckoutResult{Order: order}, gatewayError(err).WithOrderID(order.ID)
	}

	if page.CorrelationID == "" {
		c.logger.Warn().Str("order_id", order.ID).Msg("gateway returned no sale_uniqid, IPN cannot be matched")
	} else {
		if err := c.orderRepo.UpdatePaymentRefs(ctx, order.ID, page.CorrelationID, page.CorrelationID); err != nil {
			c.logger.Error().Err(err).
				Str("order_id", order.ID).
				Str("sale_uniqid", page.CorrelationID).
				Msg("failed to store sale_uniqid")
			return &CheckoutResult{Order: order}, apperr.Wrap(apperr.PersistenceCode, err).WithOrderID(order.ID)
		}
		if order.SaleUniqID == nil {
			order.SaleUniqID = &page.CorrelationID
		}
		order.PaymentRef = &page.CorrelationID
	}

	c.logger.Info().
		Str("order_id", order.ID).
		Str("sale_uniqid", page.CorrelationID).
		Msg("payment page created")

	return &CheckoutResult{
		Order:      order,
		PaymentURL: page.RedirectURL,
		SaleUniqID: page.CorrelationID,
	}, nil
}

func (c *CheckoutService) callbackURL(path, orderID string) string {
	return fmt.Sprintf("%s%s?orderId=%s", c.baseURL, path, url.QueryEscape(orderID))
}

// gatewayError 金流錯誤轉成對外的錯誤種類
func gatewayError(err error) *apperr.Error {
	var code apperr.ErrCode
	switch gateway.KindOf(err) {
	case gateway.KindAuth:
		code = apperr.GatewayAuthCode
	case gateway.KindRejected:
		code = apperr.GatewayRejectedCode
	default:
		code = apperr.GatewayUnavailableCode
	}
	appErr := apperr.Wrap(code, err)

	var gwErr *gateway.GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == gateway.KindRejected && gwErr.Msg != "" {
		appErr.Msg = gwErr.Msg
	}
	return appErr
}
