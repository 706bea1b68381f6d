package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ShippingMethodPickupPoint = "pickup-point"
	ShippingMethodDelivery    = "delivery"
)

type Order struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Email     string `gorm:"not null;type:varchar(255)" json:"email"`
	FirstName string `gorm:"not null;type:varchar(100)" json:"firstName"`
	LastName  string `gorm:"not null;type:varchar(100)" json:"lastName"`
	Phone     string `gorm:"not null;type:varchar(50)" json:"phone"`
	Address   string `gorm:"not null;type:varchar(255)" json:"address"`
	City      string `gorm:"not null;type:varchar(100)" json:"city"`

	Subtotal       decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"subtotal"`
	ShippingCost   decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"shippingCost"`
	BundleDiscount decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"bundleDiscount"`
	Total          decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"total"`
	BundleName     *string         `gorm:"type:varchar(255)" json:"bundleName"`

	ShippingMethod  *string `gorm:"type:varchar(32)" json:"shippingMethod"`
	PickupPointCode *string `gorm:"type:varchar(64)" json:"pickupPointCode"`
	PickupPointName *string `gorm:"type:varchar(255)" json:"pickupPointName"`

	Status OrderStatus `gorm:"not null;type:varchar(20);index" json:"status"`
	// 金流建立 sale 時回傳的 sale_uniqid，之後不再覆寫，IPN 用它找訂單
	SaleUniqID *string `gorm:"column:sale_uniq_id;type:varchar(255);index" json:"saleUniqid"`
	// correlation id: 先是 sale_uniqid，IPN 成功後改為金流的 doc_id
	PaymentRef *string `gorm:"type:varchar(255);index" json:"paymentRef"`
	// 使用者被導回時帶的 doc id，只做紀錄不參與 IPN 查詢
	RedirectDocID  *string    `gorm:"type:varchar(255)" json:"redirectDocId"`
	IdempotencyKey *string    `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	PaidAt         *time.Time `json:"paidAt"`

	OrderItems []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"` // 一對多，級聯刪除
	BaseModel
}

type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     string          `gorm:"not null;type:varchar(64);index" json:"orderId"` // 外鍵，關聯到 Order
	ProductID   string          `gorm:"not null;type:varchar(255)" json:"productId"`
	ProductName string          `gorm:"not null;type:varchar(255)" json:"productName"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"price"`
}

// PaymentAttempt 每次產生付款頁都留一筆，重試後舊的 sale_uniqid 仍可能收到 IPN
type PaymentAttempt struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    string    `gorm:"not null;type:varchar(64);index" json:"orderId"`
	SaleUniqID string    `gorm:"column:sale_uniq_id;not null;type:varchar(255);uniqueIndex" json:"saleUniqid"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}

// ItemsSubtotal Σ price * quantity
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.OrderItems {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.OrderItems {
		count += item.Quantity
	}
	return count
}

func (o *Order) FullName() string {
	return o.FirstName + " " + o.LastName
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
