package dto

import (
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
)

type AdminLoginRequest struct {
	Password string `json:"password"`
}

type AdminAuthResponse struct {
	Success       bool `json:"success,omitempty"`
	Authenticated bool `json:"authenticated"`
}

type OrdersResponse struct {
	Orders []model.Order `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Success bool         `json:"success"`
	Order   *model.Order `json:"order"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type GatewayCheckResponse struct {
	Success  bool              `json:"success"`
	PayPages []gateway.PayPage `json:"payPages"`
}
