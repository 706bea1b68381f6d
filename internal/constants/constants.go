package constants

import "time"

// for api context
type ContextKey string

const (
	RequestIDKey    ContextKey = "request_id"
	CartSessionKey  ContextKey = "cart_session"
	AdminSessionKey ContextKey = "admin_session"
)

const (
	RequestIDHeader   = "request_id"
	IdempotencyHeader = "Idempotency-Key"
)

// cookie
const (
	CartSessionCookie  = "cart_session"
	AdminSessionCookie = "admin_session"
)

const (
	CurrencyILS = "ILS"

	// 金流付款頁語系
	GatewayLang = "he"

	CartSessionTTL  = 30 * 24 * time.Hour
	AdminSessionTTL = 24 * time.Hour
	PickupCacheTTL  = time.Hour
)

// 付款頁上的明細名稱
const (
	BundleDiscountLine  = "הנחת מארז"
	ShippingLine        = "משלוח"
	DeliveryLine        = "משלוח עד הבית"
	PickupPointLine     = "נקודת איסוף"
	PickupPointLineName = "נקודת איסוף: %s"
)
