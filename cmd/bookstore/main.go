package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/api"
	"github.com/RoyceAzure/lab/bookstore/internal/api/handler"
	"github.com/RoyceAzure/lab/bookstore/internal/api/router"
	"github.com/RoyceAzure/lab/bookstore/internal/appcontext"
	"github.com/RoyceAzure/lab/bookstore/internal/config"
	"github.com/RoyceAzure/lab/bookstore/internal/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 金額輸出成 json number，前端直接拿來計算
	decimal.MarshalJSONWithoutQuotes = true

	cf := config.GetConfig()
	log := logger.New(cf.LogLevel, cf.IsDev())

	app, err := appcontext.NewApplicationContext(cf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up application")
		return
	}

	// 初始化 handler
	server := api.NewServer(
		handler.NewCheckoutHandler(app.CheckoutService),
		handler.NewPaymentHandler(app.ReconcileService, app.CartRegistry),
		handler.NewCartHandler(app.CartRegistry, app.Catalog, app.PricingEngine),
		handler.NewCatalogHandler(app.Catalog),
		handler.NewPickupHandler(app.PickupClient),
		handler.NewAdminHandler(app.AdminService, !cf.IsDev()),
		handler.NewHealthHandler(map[string]handler.Pinger{
			"database": app.DbDao,
			"redis":    redisPinger{app},
		}),
	)

	// 設置路由
	r := router.SetupRouter(server, router.Options{
		CheckoutLimiter: app.CheckoutLimiter,
		AdminSessions:   app.AdminService,
		SecureCookies:   !cf.IsDev(),
	}, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cf.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		app.CartRegistry.Run(gCtx)
		return nil
	})
	if app.PurchaseConsumer != nil {
		g.Go(func() error {
			return app.PurchaseConsumer.Run(gCtx)
		})
	}
	// 收到訊號或任一個 goroutine 失敗時開始關閉
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		return app.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("exit with error")
		os.Exit(1)
	}
	log.Info().Msg("closed completed")
}

type redisPinger struct {
	app *appcontext.ApplicationContext
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.app.RedisClient.Ping(ctx).Err()
}
