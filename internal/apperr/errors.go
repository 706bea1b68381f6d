package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrCode int

const (
	BadRequestCode ErrCode = iota + 1
	MissingFieldsCode
	EmptyOrderCode
	InvalidItemCode
	TotalMismatchCode
	InvalidStatusCode
	OrderNotFoundCode
	OrderStateConflictCode
	OrderNotPendingCode
	WebhookMalformedCode
	UnauthenticatedCode
	TooManyRequestsCode
	GatewayAuthCode
	GatewayUnavailableCode
	GatewayRejectedCode
	PersistenceCode
	PickupUnavailableCode
	InternalErrorCode
)

// 對外顯示的錯誤訊息
var ErrStrMap = map[ErrCode]string{
	BadRequestCode:         "Bad request",
	MissingFieldsCode:      "Missing required fields",
	EmptyOrderCode:         "Order must contain at least one item",
	InvalidItemCode:        "Invalid order item",
	TotalMismatchCode:      "Order total does not match items",
	InvalidStatusCode:      "Invalid status",
	OrderNotFoundCode:      "Order not found",
	OrderStateConflictCode: "Could not update order status",
	OrderNotPendingCode:    "Order is no longer awaiting payment",
	WebhookMalformedCode:   "Missing sale_uniqid",
	UnauthenticatedCode:    "Unauthorized",
	TooManyRequestsCode:    "Too Many Requests",
	GatewayAuthCode:        "Payment service unavailable",
	GatewayUnavailableCode: "Payment service unavailable",
	GatewayRejectedCode:    "Payment request was rejected",
	PersistenceCode:        "Failed to process request",
	PickupUnavailableCode:  "Failed to fetch pickup points",
	InternalErrorCode:      "Internal Server Error",
}

var httpStatusMap = map[ErrCode]int{
	BadRequestCode:         http.StatusBadRequest,
	MissingFieldsCode:      http.StatusBadRequest,
	EmptyOrderCode:         http.StatusBadRequest,
	InvalidItemCode:        http.StatusBadRequest,
	TotalMismatchCode:      http.StatusBadRequest,
	InvalidStatusCode:      http.StatusBadRequest,
	OrderNotFoundCode:      http.StatusNotFound,
	OrderStateConflictCode: http.StatusBadRequest,
	OrderNotPendingCode:    http.StatusConflict,
	WebhookMalformedCode:   http.StatusBadRequest,
	UnauthenticatedCode:    http.StatusUnauthorized,
	TooManyRequestsCode:    http.StatusTooManyRequests,
	GatewayAuthCode:        http.StatusServiceUnavailable,
	GatewayUnavailableCode: http.StatusServiceUnavailable,
	GatewayRejectedCode:    http.StatusInternalServerError,
	PersistenceCode:        http.StatusInternalServerError,
	PickupUnavailableCode:  http.StatusInternalServerError,
	InternalErrorCode:      http.StatusInternalServerError,
}

// Error 帶錯誤碼的應用層錯誤
// OrderID 有值時代表訂單已經建立，client 可以拿著它重試付款
type Error struct {
	Code    ErrCode
	Msg     string
	OrderID string
	Err     error
}

var (
	ErrMissingFields      = &Error{Code: MissingFieldsCode}
	ErrEmptyOrder         = &Error{Code: EmptyOrderCode}
	ErrInvalidItem        = &Error{Code: InvalidItemCode}
	ErrTotalMismatch      = &Error{Code: TotalMismatchCode}
	ErrInvalidStatus      = &Error{Code: InvalidStatusCode}
	ErrOrderNotFound      = &Error{Code: OrderNotFoundCode}
	ErrOrderStateConflict = &Error{Code: OrderStateConflictCode}
	ErrOrderNotPending    = &Error{Code: OrderNotPendingCode}
	ErrWebhookMalformed   = &Error{Code: WebhookMalformedCode}
	ErrUnauthenticated    = &Error{Code: UnauthenticatedCode}
	ErrTooManyRequests    = &Error{Code: TooManyRequestsCode}
	ErrGatewayAuth        = &Error{Code: GatewayAuthCode}
	ErrGatewayUnavailable = &Error{Code: GatewayUnavailableCode}
	ErrGatewayRejected    = &Error{Code: GatewayRejectedCode}
	ErrPersistence        = &Error{Code: PersistenceCode}
	ErrPickupUnavailable  = &Error{Code: PickupUnavailableCode}
)

func New(code ErrCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Newf(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 保留原始錯誤，原始錯誤只進 log，不會回給 client
func Wrap(code ErrCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = ErrStrMap[e.Code]
	}
	if e.OrderID != "" {
		msg = fmt.Sprintf("%s (order %s)", msg, e.OrderID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 只比對錯誤碼，讓 errors.Is(err, ErrOrderNotFound) 可以用在帶訊息的錯誤上
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithOrderID 回傳帶訂單編號的副本
func (e *Error) WithOrderID(orderID string) *Error {
	cp := *e
	cp.OrderID = orderID
	return &cp
}

func CodeOf(err error) ErrCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return InternalErrorCode
}

func HTTPStatus(err error) int {
	if status, ok := httpStatusMap[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PublicMessage 給 client 的訊息
// 5xx 的內部錯誤一律只回固定字串
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return ErrStrMap[InternalErrorCode]
	}
	switch appErr.Code {
	case PersistenceCode, InternalErrorCode:
		return ErrStrMap[appErr.Code]
	}
	if appErr.Msg != "" {
		return appErr.Msg
	}
	return ErrStrMap[appErr.Code]
}

func OrderIDOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.OrderID
	}
	return ""
}
