package api

import "github.com/RoyceAzure/lab/bookstore/internal/api/handler"

type Server struct {
	CheckoutHandler *handler.CheckoutHandler
	PaymentHandler  *handler.PaymentHandler
	CartHandler     *handler.CartHandler
	CatalogHandler  *handler.CatalogHandler
	PickupHandler   *handler.PickupHandler
	AdminHandler    *handler.AdminHandler
	HealthHandler   *handler.HealthHandler
}

func NewServer(
	checkoutHandler *handler.CheckoutHandler,
	paymentHandler *handler.PaymentHandler,
	cartHandler *handler.CartHandler,
	catalogHandler *handler.CatalogHandler,
	pickupHandler *handler.PickupHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
) *Server {
	return &Server{
		CheckoutHandler: checkoutHandler,
		PaymentHandler:  paymentHandler,
		CartHandler:     cartHandler,
		CatalogHandler:  catalogHandler,
		PickupHandler:   pickupHandler,
		AdminHandler:    adminHandler,
		HealthHandler:   healthHandler,
	}
}
