package appcontext

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/bookstore/internal/cart"
	"github.com/RoyceAzure/lab/bookstore/internal/config"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/analytics"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/pickup"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/redis_repo"
	"github.com/RoyceAzure/lab/bookstore/internal/pkg/limiter"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/RoyceAzure/lab/bookstore/internal/service"
	"github.com/RoyceAzure/lab/bookstore/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	purchaseConsumerGroup = "bookstore-capi"
	checkoutLimiterPrefix = "ratelimit:checkout"
)

type ApplicationContext struct {
	Cf     *config.Config
	Logger zerolog.Logger

	DbDao       *db.DbDao
	RedisClient *redis.Client
	OrderRepo   db.IOrderRepository

	Catalog       *config.Catalog
	PricingEngine *pricing.Engine
	CartRegistry  *cart.Registry

	Gateway          *gateway.Client
	CAPIClient       *analytics.CAPIClient
	PickupClient     *pickup.Client
	KafkaWriter      *kafka.Writer
	Dispatcher       worker.Dispatcher
	PurchaseConsumer *worker.PurchaseConsumer
	CheckoutLimiter  limiter.Limiter

	OrderService     service.IOrderService
	CheckoutService  service.ICheckoutService
	ReconcileService service.IReconcileService
	AdminService     service.IAdminService
}

func NewApplicationContext(cf *config.Config, logger zerolog.Logger) (*ApplicationContext, error) {
	app := ApplicationContext{
		Cf:     cf,
		Logger: logger,
	}
	logger.Info().
		Str("app_env", cf.AppEnv).
		Str("db_driver", cf.DbDriver).
		Str("redis_addr", cf.RedisAddr).
		Strs("kafka_brokers", cf.KafkaBrokerList()).
		Bool("gateway_configured", cf.GatewayConfigured()).
		Bool("analytics_configured", cf.AnalyticsConfigured()).
		Msg("load config")

	if err := app.Init(); err != nil {
		// 已經建好的連線要關掉
		_ = app.Shutdown(context.Background())
		return nil, err
	}
	return &app, nil
}

func (app *ApplicationContext) Init() error {
	steps := []func() error{
		app.setUpDb,
		app.setUpRedis,
		app.setUpCatalog,
		app.setUpCartRegistry,
		app.setUpGateway,
		app.setUpDispatcher,
		app.setUpPickupClient,
		app.setUpCheckoutLimiter,
		app.setUpServices,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if !app.Cf.GatewayConfigured() {
		app.Logger.Warn().Msg("payment gateway credentials missing, checkout will fail with 503")
	}
	if app.Cf.AdminPassword == "" {
		app.Logger.Warn().Msg("ADMIN_PASSWORD is empty, admin login disabled")
	}
	return nil
}

func (app *ApplicationContext) setUpDb() error {
	app.Logger.Info().Msg("Start setup database connection")
	cf := app.Cf
	switch cf.DbDriver {
	case "sqlite":
		gormDB, openErr := db.GetSQLiteConn(cf.SqlitePath)
		if openErr != nil {
			return fmt.Errorf("open sqlite %s: %w", cf.SqlitePath, openErr)
		}
		app.DbDao = db.NewDbDao(gormDB)
	case "postgres", "":
		gormDB, openErr := db.GetDbConn(cf.DbName, cf.DbHost, cf.DbPort, cf.DbUser, cf.DbPas)
		if openErr != nil {
			return fmt.Errorf("open postgres: %w", openErr)
		}
		app.DbDao = db.NewDbDao(gormDB)
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", cf.DbDriver)
	}

	if err := app.DbDao.InitMigrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	app.OrderRepo = db.NewOrderRepo(app.DbDao)
	app.Logger.Info().Msg("Finish setup database connection")
	return nil
}

func (app *ApplicationContext) setUpRedis() error {
	app.Logger.Info().Msg("Start setup redis client")
	app.RedisClient = redis.NewClient(&redis.Options{
		Addr:     app.Cf.RedisAddr,
		Password: app.Cf.RedisPassword,
		DB:       app.Cf.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), app.Cf.HTTPTimeout)
	defer cancel()
	if err := app.RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", app.Cf.RedisAddr, err)
	}
	app.Logger.Info().Msg("Finish setup redis client")
	return nil
}

func (app *ApplicationContext) setUpCatalog() error {
	app.Logger.Info().Msg("Start setup catalog")
	catalog, err := config.LoadCatalog(app.Cf.CatalogFile)
	if err != nil {
		return err
	}
	engine, err := pricing.NewEngine(catalog.Rules())
	if err != nil {
		return fmt.Errorf("build pricing engine: %w", err)
	}
	app.Catalog = catalog
	app.PricingEngine = engine
	app.Logger.Info().Int("products", len(catalog.Products())).Msg("Finish setup catalog")
	return nil
}

func (app *ApplicationContext) setUpCartRegistry() error {
	app.Logger.Info().Msg("Start setup cart registry")
	storage := redis_repo.NewCartRepo(app.RedisClient, constants.CartSessionTTL)
	app.CartRegistry = cart.NewRegistry(app.PricingEngine, storage, cart.DefaultIdleTTL, app.Logger.With().Str("component", "cart").Logger())
	app.Logger.Info().Msg("Finish setup cart registry")
	return nil
}

func (app *ApplicationContext) setUpGateway() error {
	app.Logger.Info().Msg("Start setup payment gateway")
	app.Gateway = gateway.NewClient(app.Cf.ICountAPIURL, gateway.Credentials{
		CID:  app.Cf.ICountCID,
		User: app.Cf.ICountUser,
		Pass: app.Cf.ICountPass,
	}, app.Cf.ICountPaypageID, app.Cf.HTTPTimeout)
	app.Logger.Info().Msg("Finish setup payment gateway")
	return nil
}

/*
setUpDispatcher 付款完成的分析事件
  - 沒有設定 pixel: 不送
  - 有 kafka: 先寫 topic，由 consumer 呼叫 conversions api
  - 沒有 kafka: worker pool 直接呼叫 conversions api
*/
func (app *ApplicationContext) setUpDispatcher() error {
	app.Logger.Info().Msg("Start setup purchase dispatcher")
	logger := app.Logger.With().Str("component", "purchase").Logger()

	if !app.Cf.AnalyticsConfigured() {
		app.Dispatcher = worker.NopDispatcher{}
		app.Logger.Info().Msg("Finish setup purchase dispatcher (analytics disabled)")
		return nil
	}
	app.CAPIClient = analytics.NewCAPIClient(app.Cf.MetaCAPIURL, app.Cf.MetaPixelID, app.Cf.MetaCAPIToken, app.Cf.BaseURL, app.Cf.HTTPTimeout)

	brokers := app.Cf.KafkaBrokerList()
	if len(brokers) == 0 {
		app.Dispatcher = worker.NewPoolDispatcher(app.CAPIClient, worker.DefaultPoolConfig(), logger)
		app.Logger.Info().Msg("Finish setup purchase dispatcher (in-process)")
		return nil
	}

	app.KafkaWriter = worker.NewKafkaWriter(brokers, app.Cf.KafkaPurchaseTopic)
	app.Dispatcher = worker.NewKafkaDispatcher(app.KafkaWriter, worker.DefaultPoolConfig(), logger)
	reader := worker.NewKafkaReader(brokers, app.Cf.KafkaPurchaseTopic, purchaseConsumerGroup)
	app.PurchaseConsumer = worker.NewPurchaseConsumer(reader, app.CAPIClient, app.Cf.HTTPTimeout, logger)
	app.Logger.Info().Str("topic", app.Cf.KafkaPurchaseTopic).Msg("Finish setup purchase dispatcher (kafka)")
	return nil
}

func (app *ApplicationContext) setUpPickupClient() error {
	app.Logger.Info().Msg("Start setup pickup client")
	cache := redis_repo.NewJSONCacheRepo(app.RedisClient)
	app.PickupClient = pickup.NewClient(app.Cf.PickupPointsURL, app.Cf.HTTPTimeout, cache, constants.PickupCacheTTL,
		app.Logger.With().Str("component", "pickup").Logger())
	app.Logger.Info().Msg("Finish setup pickup client")
	return nil
}

// 多個 instance 共用 redis 的 bucket
func (app *ApplicationContext) setUpCheckoutLimiter() error {
	app.Logger.Info().Msg("Start setup checkout limiter")
	l, err := newCheckoutLimiter(app.Cf, app.RedisClient, app.Logger)
	if err != nil {
		return err
	}
	app.CheckoutLimiter = l
	app.Logger.Info().Str("backend", app.Cf.CheckoutLimiter).Msg("Finish setup checkout limiter")
	return nil
}

// newCheckoutLimiter 預設用 redis 讓多個 instance 共用額度，memory 給單機部署
func newCheckoutLimiter(cf *config.Config, client *redis.Client, logger zerolog.Logger) (limiter.Limiter, error) {
	lc := &limiter.LimiterConfig{
		Capacity: cf.CheckoutBurst,
		RatePS:   float64(cf.CheckoutRatePerSec),
	}
	switch cf.CheckoutLimiter {
	case "redis", "":
		if client == nil {
			return nil, errors.New("redis checkout limiter requires a redis client")
		}
		return limiter.NewRsTokenBucket(client, checkoutLimiterPrefix, lc, logger), nil
	case "memory":
		return limiter.NewTokenBucket(lc), nil
	default:
		return nil, fmt.Errorf("unknown CHECKOUT_LIMITER %q", cf.CheckoutLimiter)
	}
}

func (app *ApplicationContext) setUpServices() error {
	app.Logger.Info().Msg("Start setup services")
	logger := app.Logger
	app.OrderService = service.NewOrderService(app.OrderRepo, app.Catalog, app.PricingEngine, app.shippingRates(), logger)
	app.CheckoutService = service.NewCheckoutService(app.OrderService, app.OrderRepo, app.Gateway, app.Cf.BaseURL, logger)
	app.ReconcileService = service.NewReconcileService(app.OrderRepo, app.Dispatcher, logger)
	app.AdminService = service.NewAdminService(app.Cf.AdminPassword, redis_repo.NewAdminSessionRepo(app.RedisClient),
		app.OrderRepo, app.Gateway, constants.AdminSessionTTL, logger)
	app.Logger.Info().Msg("Finish setup services")
	return nil
}

// 負數的運費設定代表不檢查
func (app *ApplicationContext) shippingRates() service.ShippingRates {
	rates := service.ShippingRates{}
	if app.Cf.ShippingPickupCost >= 0 {
		rates[model.ShippingMethodPickupPoint] = decimal.NewFromInt(app.Cf.ShippingPickupCost)
	}
	if app.Cf.ShippingDeliveryCost >= 0 {
		rates[model.ShippingMethodDelivery] = decimal.NewFromInt(app.Cf.ShippingDeliveryCost)
	}
	return rates
}

// Shutdown 依建立的相反順序關閉，錯誤全部收集後一起回傳
func (app *ApplicationContext) Shutdown(ctx context.Context) error {
	app.Logger.Info().Msg("Start application shutdown")

	var err error
	if app.PurchaseConsumer != nil {
		err = multierr.Append(err, ignoreClosed(app.PurchaseConsumer.Stop()))
	}
	// pool 內的 kafka writer 要等 queue 送完才關
	if d, ok := app.Dispatcher.(*worker.PoolDispatcher); ok {
		err = multierr.Append(err, d.Close(ctx))
	}
	if app.KafkaWriter != nil {
		err = multierr.Append(err, app.KafkaWriter.Close())
	}
	if app.CartRegistry != nil {
		app.CartRegistry.Close()
	}
	if app.RedisClient != nil {
		err = multierr.Append(err, app.RedisClient.Close())
	}
	if app.DbDao != nil {
		err = multierr.Append(err, app.DbDao.Close())
	}

	if err != nil {
		app.Logger.Error().Err(err).Msg("application shutdown with errors")
		return err
	}
	app.Logger.Info().Msg("Application shutdown complete")
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, worker.ErrConsumerClosed) {
		return nil
	}
	return err
}
