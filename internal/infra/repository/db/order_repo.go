package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepo struct {
	db *DbDao
}

func NewOrderRepo(db *DbDao) *OrderRepo {
	return &OrderRepo{db: db}
}

var _ IOrderRepository = (*OrderRepo)(nil)

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// CreateOrderWithItems 訂單與明細在同一個 transaction，任何一筆失敗整筆 rollback
func (s *OrderRepo) CreateOrderWithItems(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateIdempotentKey
			}
			return fmt.Errorf("create order: %w", err)
		}
		if len(order.OrderItems) == 0 {
			return nil
		}
		for i := range order.OrderItems {
			order.OrderItems[i].OrderID = order.ID
		}
		if err := tx.Create(&order.OrderItems).Error; err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		return nil
	})
}

// Read - 根據ID查詢訂單
func (s *OrderRepo) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *OrderRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	return s.first(ctx, "idempotency_key = ?", key)
}

// GetOrderByPaymentRef IPN 可能帶任何一次產生過的 sale_uniqid，或之後換成的 doc id
func (s *OrderRepo) GetOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error) {
	attempts := s.db.WithContext(ctx).Model(&model.PaymentAttempt{}).
		Select("order_id").
		Where("sale_uniq_id = ?", ref)
	return s.first(ctx, "sale_uniq_id = ? OR payment_ref = ? OR id IN (?)", ref, ref, attempts)
}

func (s *OrderRepo) first(ctx context.Context, query string, args ...interface{}) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems", preloadItems).
		Where(query, args...).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetAllOrders 新的在前，status 為 nil 時不過濾
func (s *OrderRepo) GetAllOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	var orders []model.Order
	query := s.db.WithContext(ctx).Preload("OrderItems", preloadItems)
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}
	err := query.Order("created_at DESC").Find(&orders).Error
	return orders, err
}

/*
UpdatePaymentRefs sale_uniq_id 只寫第一次，重新產生付款頁時只更新 payment_ref
每個 sale_uniqid 另外記在 payment_attempts，舊付款頁的 IPN 還找得到訂單
*/
func (s *OrderRepo) UpdatePaymentRefs(ctx context.Context, id string, saleUniqID, paymentRef string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Order{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"sale_uniq_id": gorm.Expr("COALESCE(sale_uniq_id, ?)", saleUniqID),
				"payment_ref":  paymentRef,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrOrderNotFound
		}
		if saleUniqID == "" {
			return nil
		}
		attempt := model.PaymentAttempt{OrderID: id, SaleUniqID: saleUniqID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&attempt).Error; err != nil {
			return fmt.Errorf("record payment attempt: %w", err)
		}
		return nil
	})
}

// SetPaymentRefIfStatus 只改 payment_ref，狀態不符時回傳 false
func (s *OrderRepo) SetPaymentRefIfStatus(ctx context.Context, id string, status model.OrderStatus, paymentRef string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, string(status)).
		Update("payment_ref", paymentRef)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

/*
CompareAndSetStatus 單一 UPDATE ... WHERE id = ? AND status IN (...)
回傳 false 代表目前狀態不符 (或訂單不存在)，由呼叫端再查一次決定怎麼回應
*/
func (s *OrderRepo) CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (bool, error) {
	if len(change.From) == 0 {
		return false, nil
	}
	from := make([]string, 0, len(change.From))
	for _, st := range change.From {
		from = append(from, string(st))
	}

	updates := map[string]interface{}{
		"status": string(change.To),
	}
	if change.PaidAt != nil {
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", *change.PaidAt)
	}
	if change.PaymentRef != nil {
		updates["payment_ref"] = *change.PaymentRef
	}
	if change.RedirectDocID != nil {
		updates["redirect_doc_id"] = *change.RedirectDocID
	}

	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateOrderStatus 後台直接設定狀態，不檢查來源狀態
func (s *OrderRepo) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// HardDeleteOrder 先刪明細與付款紀錄再刪訂單
func (s *OrderRepo) HardDeleteOrder(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		if err := tx.Where("order_id = ?", id).Delete(&model.PaymentAttempt{}).Error; err != nil {
			return fmt.Errorf("delete payment attempts: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&model.Order{})
		if result.Error != nil {
			return fmt.Errorf("delete order: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
}
