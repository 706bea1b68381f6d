package dto

type CheckoutResponse struct {
	Success    bool   `json:"success"`
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
	SaleUniqID string `json:"saleUniqid,omitempty"`
}
