package dto

import "time"

type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	DocID     string `json:"docId"`
}

type VerifyPaymentResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status,omitempty"`
	AlreadyPaid bool   `json:"alreadyPaid,omitempty"`
}

type IPNResponse struct {
	Success bool `json:"success"`
}

type IPNStatusResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
