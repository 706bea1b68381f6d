package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CheckoutItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// CheckoutRequest 結帳頁送上來的資料，金額欄位都是 client 算的，server 會重算比對
type CheckoutRequest struct {
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	City      string         `json:"city"`
	Address   string         `json:"address"`
	Items     []CheckoutItem `json:"items"`

	Total          decimal.Decimal `json:"total"`
	BundleDiscount decimal.Decimal `json:"bundleDiscount"`
	BundleName     string          `json:"bundleName"`

	ShippingMethod  string          `json:"shippingMethod"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	PickupPointCode string          `json:"pickupPointCode"`
	PickupPointName string          `json:"pickupPointName"`

	IdempotencyKey string `json:"idempotencyKey"`
}

// ProductCatalog 商品目錄，結帳時用來確認商品與價格
type ProductCatalog interface {
	Product(id string) (model.Product, bool)
}

// ShippingRates 各運送方式的固定運費，沒有列出的方式不檢查
type ShippingRates map[string]decimal.Decimal

type IOrderService interface {
	CreateOrder(ctx context.Context, req CheckoutRequest) (*model.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
}

type OrderService struct {
	orderRepo db.IOrderRepository
	catalog   ProductCatalog
	engine    *pricing.Engine
	rates     ShippingRates
	logger    zerolog.Logger
}

func NewOrderService(orderRepo db.IOrderRepository, catalog ProductCatalog, engine *pricing.Engine, rates ShippingRates, logger zerolog.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		catalog:   catalog,
		engine:    engine,
		rates:     rates,
		logger:    logger,
	}
}

var _ IOrderService = (*OrderService)(nil)

/*
CreateOrder 驗證後建立 PENDING 訂單，訂單與明細同一個 transaction
帶 idempotency key 且已經有訂單時直接回傳舊訂單，第二個回傳值為 true
*/
func (o *OrderService) CreateOrder(ctx context.Context, req CheckoutRequest) (*model.Order, bool, error) {
	req = normalize(req)
	if err := o.validate(req); err != nil {
		return nil, false, err
	}
	o.fillNames(req.Items)

	if req.IdempotencyKey != "" {
		existing, err := o.orderRepo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, db.ErrOrderNotFound) {
			return nil, false, apperr.Wrap(apperr.PersistenceCode, err)
		}
	}

	order := buildOrder(req)
	if err := o.orderRepo.CreateOrderWithItems(ctx, order); err != nil {
		// 同一把 key 同時送進來，輸的那個回傳贏家的訂單
		if errors.Is(err, db.ErrDuplicateIdempotentKey) {
			existing, getErr := o.orderRepo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr == nil {
				return existing, true, nil
			}
			err = getErr
		}
		o.logger.Error().Err(err).Str("email", req.Email).Msg("failed to create order")
		return nil, false, apperr.Wrap(apperr.PersistenceCode, err)
	}

	o.logger.Info().
		Str("order_id", order.ID).
		Str("total", order.Total.String()).
		Int("items", len(order.OrderItems)).
		Msg("order created")
	return order, false, nil
}

func (o *OrderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := o.orderRepo.GetOrderByID(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}
	return order, nil
}

// 明細名稱沒給時用目錄上的名稱
func (o *OrderService) fillNames(items []CheckoutItem) {
	for i := range items {
		if strings.TrimSpace(items[i].Name) != "" || o.catalog == nil {
			continue
		}
		if product, ok := o.catalog.Product(items[i].ProductID); ok {
			items[i].Name = product.Name
		}
	}
}

func normalize(req CheckoutRequest) CheckoutRequest {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.City = strings.TrimSpace(req.City)
	req.Address = strings.TrimSpace(req.Address)
	req.BundleName = strings.TrimSpace(req.BundleName)
	req.ShippingMethod = strings.TrimSpace(req.ShippingMethod)
	req.PickupPointCode = strings.TrimSpace(req.PickupPointCode)
	req.PickupPointName = strings.TrimSpace(req.PickupPointName)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	return req
}

func (o *OrderService) validate(req CheckoutRequest) error {
	if req.FirstName == "" || req.LastName == "" || req.Email == "" ||
		req.Phone == "" || req.City == "" || req.Address == "" {
		return apperr.ErrMissingFields
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apperr.New(apperr.MissingFieldsCode, "Invalid email address")
	}
	if len(req.Items) == 0 {
		return apperr.ErrEmptyOrder
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 || item.Price.IsNegative() {
			return apperr.ErrInvalidItem
		}
		if o.catalog != nil {
			product, ok := o.catalog.Product(item.ProductID)
			if !ok {
				return apperr.Newf(apperr.InvalidItemCode, "Unknown product %s", item.ProductID)
			}
			if !product.Price.Equal(item.Price) {
				return apperr.Newf(apperr.InvalidItemCode, "Price of %s has changed", item.ProductID)
			}
		}
		lines = append(lines, pricing.Line{ProductID: item.ProductID, Price: item.Price, Quantity: item.Quantity})
	}

	switch req.ShippingMethod {
	case "", model.ShippingMethodPickupPoint, model.ShippingMethodDelivery:
	default:
		return apperr.Newf(apperr.InvalidItemCode, "Unknown shipping method %s", req.ShippingMethod)
	}
	if req.ShippingCost.IsNegative() || req.BundleDiscount.IsNegative() {
		return apperr.ErrTotalMismatch
	}
	if rate, ok := o.rates[req.ShippingMethod]; ok && !rate.Equal(req.ShippingCost) {
		return apperr.New(apperr.TotalMismatchCode, "Shipping cost does not match shipping method")
	}

	if o.engine != nil {
		quote := o.engine.Quote(lines)
		if req.BundleDiscount.GreaterThan(quote.Discount) {
			return apperr.New(apperr.TotalMismatchCode, "Bundle discount is not applicable")
		}
	}

	if !expectedTotal(req).Equal(req.Total) {
		return apperr.ErrTotalMismatch
	}
	return nil
}

// Σ price * qty + shipping - discount
func expectedTotal(req CheckoutRequest) decimal.Decimal {
	total := decimal.Zero
	for _, item := range req.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Add(req.ShippingCost).Sub(req.BundleDiscount)
}

func buildOrder(req CheckoutRequest) *model.Order {
	order := &model.Order{
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Address:        req.Address,
		City:           req.City,
		ShippingCost:   req.ShippingCost,
		BundleDiscount: req.BundleDiscount,
		Total:          req.Total,
		Status:         model.OrderStatusPending,
	}
	order.BundleName = optional(req.BundleName)
	order.ShippingMethod = optional(req.ShippingMethod)
	order.PickupPointCode = optional(req.PickupPointCode)
	order.PickupPointName = optional(req.PickupPointName)
	order.IdempotencyKey = optional(req.IdempotencyKey)

	order.OrderItems = make([]model.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		order.OrderItems = append(order.OrderItems, model.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	order.Subtotal = order.ItemsSubtotal()
	return order
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
