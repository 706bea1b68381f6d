package router

import (
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api"
	m "github.com/RoyceAzure/lab/bookstore/internal/api/middleware"
	"github.com/RoyceAzure/lab/bookstore/internal/pkg/limiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Options struct {
	// 結帳的限流，nil 代表不限
	CheckoutLimiter limiter.Limiter
	AdminSessions   m.SessionChecker
	SecureCookies   bool
}

func SetupRouter(server *api.Server, opts Options, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// 全局中間件
	r.Use(middleware.RealIP)
	r.Use(m.RequestIdMiddleware)
	r.Use(m.LoggerMiddleware(logger))

	r.Get("/healthz", server.HealthHandler.Healthz)

	cartSession := m.CartSessionMiddleware(opts.SecureCookies)
	adminAuth := m.AdminAuthMiddleware(opts.AdminSessions)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.CheckoutLimiter != nil {
				r.Use(m.NewRateLimitMiddleware(opts.CheckoutLimiter))
			}
			r.Post("/checkout", server.CheckoutHandler.Checkout)
			r.Post("/checkout/{orderId}/retry", server.CheckoutHandler.RetryPayment)
		})

		r.Route("/payment", func(r chi.Router) {
			r.With(cartSession).Post("/verify", server.PaymentHandler.Verify)
			r.Post("/ipn", server.PaymentHandler.IPN)
			r.Get("/ipn", server.PaymentHandler.IPNStatus)
			// 舊的診斷路徑
			r.With(adminAuth).Get("/gateway-check", server.AdminHandler.GatewayCheck)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(cartSession)
			r.Get("/", server.CartHandler.GetCart)
			r.Delete("/", server.CartHandler.ClearCart)
			r.Post("/items", server.CartHandler.AddItem)
			r.Patch("/items/{productId}", server.CartHandler.UpdateQuantity)
			r.Delete("/items/{productId}", server.CartHandler.RemoveItem)
			r.Post("/undo/{toastId}", server.CartHandler.Undo)
			r.Delete("/toasts/{toastId}", server.CartHandler.DismissToast)
			r.Post("/quote", server.CartHandler.Quote)
		})

		r.Get("/products", server.CatalogHandler.ListProducts)
		r.Get("/products/{productId}", server.CatalogHandler.GetProduct)
		r.Get("/pickup-points", server.PickupHandler.ListPoints)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth", server.AdminHandler.Login)
			r.Get("/auth", server.AdminHandler.Status)
			r.Delete("/auth", server.AdminHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(adminAuth)
				r.Get("/orders", server.AdminHandler.ListOrders)
				r.Patch("/orders", server.AdminHandler.UpdateOrderStatus)
				r.Delete("/orders", server.AdminHandler.DeleteOrder)
				r.Get("/gateway-check", server.AdminHandler.GatewayCheck)
			})
		})
	})

	_ = chi.Walk(r, func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		logger.Debug().Str("method", method).Str("route", route).Msg("route registered")
		return nil
	})
	return r
}
