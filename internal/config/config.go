package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const EnvFileVar = "BOOKSTORE_ENV_FILE"

/*
init 與 read 分開
init : 設定 viper watch 與 onConfigChange，只做一次
read : 一般讀取，用讀寫鎖保護
*/
var configSingleton *ConfigSingleton
var muonce sync.Once

type ConfigSingleton struct {
	config *Config
	mu     sync.RWMutex
}

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	AppEnv     string `mapstructure:"APP_ENV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	// 對外網址，組 success/failure/ipn url 用
	BaseURL string `mapstructure:"BASE_URL"`

	// postgres | sqlite，sqlite 給本機開發用
	DbDriver   string `mapstructure:"DB_DRIVER"`
	SqlitePath string `mapstructure:"SQLITE_PATH"`

	DbName string `mapstructure:"POSTGRES_DB"`
	DbHost string `mapstructure:"POSTGRES_HOST"`
	DbPort string `mapstructure:"POSTGRES_PORT"`
	DbUser string `mapstructure:"POSTGRES_USER"`
	DbPas  string `mapstructure:"POSTGRES_PASSWORD"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// 逗號分隔，空字串代表不使用 kafka
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	KafkaPurchaseTopic string `mapstructure:"KAFKA_PURCHASE_TOPIC"`

	ICountAPIURL    string        `mapstructure:"ICOUNT_API_URL"`
	ICountCID       string        `mapstructure:"ICOUNT_CID"`
	ICountUser      string        `mapstructure:"ICOUNT_USER"`
	ICountPass      string        `mapstructure:"ICOUNT_PASS"`
	ICountPaypageID string        `mapstructure:"ICOUNT_PAYPAGE_ID"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`

	MetaPixelID   string `mapstructure:"META_PIXEL_ID"`
	MetaCAPIToken string `mapstructure:"META_CAPI_TOKEN"`
	MetaCAPIURL   string `mapstructure:"META_CAPI_URL"`

	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// 空字串使用內建的 catalog
	CatalogFile string `mapstructure:"CATALOG_FILE"`
	// 負數代表不檢查 client 送上來的運費
	ShippingPickupCost   int64 `mapstructure:"SHIPPING_PICKUP_COST"`
	ShippingDeliveryCost int64 `mapstructure:"SHIPPING_DELIVERY_COST"`

	PickupPointsURL string `mapstructure:"PICKUP_POINTS_URL"`

	CheckoutRatePerSec int `mapstructure:"CHECKOUT_RATE_PER_SEC"`
	CheckoutBurst      int `mapstructure:"CHECKOUT_BURST"`
	// redis: 多個 instance 共用額度，memory: 單機
	CheckoutLimiter string `mapstructure:"CHECKOUT_LIMITER"`
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "" || c.AppEnv == "dev" || c.AppEnv == "development"
}

func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) GatewayConfigured() bool {
	return c.ICountCID != "" && c.ICountUser != "" && c.ICountPass != ""
}

func (c *Config) AnalyticsConfigured() bool {
	return c.MetaPixelID != "" && c.MetaCAPIToken != ""
}

func GetConfig() *Config {
	initConfig()
	configSingleton.mu.RLock()
	defer configSingleton.mu.RUnlock()
	return configSingleton.config
}

func initConfig() {
	muonce.Do(func() {
		configSingleton = &ConfigSingleton{}
		v := viper.New()
		cf, err := LoadConfig(v, envFilePath())
		if err != nil {
			log.Fatalf("error read config: %v", err)
		}
		configSingleton.config = cf

		if v.ConfigFileUsed() == "" {
			return
		}
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			cf, err := unmarshal(v)
			if err != nil {
				log.Printf("failed to reload config file %s: %v", e.Name, err)
				return
			}
			configSingleton.mu.Lock()
			configSingleton.config = cf
			configSingleton.mu.Unlock()
		})
	})
}

func envFilePath() string {
	if p := os.Getenv(EnvFileVar); p != "" {
		return p
	}
	return ".env"
}

/*
單純回傳錯誤，由外部決定要不要 Fatal
.env 不存在時只用環境變數與預設值
*/
func LoadConfig(v *viper.Viper, envFile string) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config file %s: %w", envFile, err)
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cf := &Config{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cf.BaseURL = strings.TrimRight(cf.BaseURL, "/")
	cf.ICountAPIURL = strings.TrimRight(cf.ICountAPIURL, "/")
	return cf, nil
}

// AutomaticEnv 只對 viper 已知的 key 生效，所以每個 key 都要有預設值
func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "bookstore.db")
	v.SetDefault("POSTGRES_DB", "bookstore")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_PURCHASE_TOPIC", "bookstore.purchase")

	v.SetDefault("ICOUNT_API_URL", "https://api.icount.co.il/api/v3.php")
	v.SetDefault("ICOUNT_CID", "")
	v.SetDefault("ICOUNT_USER", "")
	v.SetDefault("ICOUNT_PASS", "")
	v.SetDefault("ICOUNT_PAYPAGE_ID", "")
	v.SetDefault("HTTP_TIMEOUT", "10s")

	v.SetDefault("META_PIXEL_ID", "")
	v.SetDefault("META_CAPI_TOKEN", "")
	v.SetDefault("META_CAPI_URL", "https://graph.facebook.com/v21.0")

	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("CATALOG_FILE", "")
	v.SetDefault("SHIPPING_PICKUP_COST", -1)
	v.SetDefault("SHIPPING_DELIVERY_COST", -1)
	v.SetDefault("PICKUP_POINTS_URL", "")

	v.SetDefault("CHECKOUT_RATE_PER_SEC", 2)
	v.SetDefault("CHECKOUT_BURST", 10)
	v.SetDefault("CHECKOUT_LIMITER", "redis")
}
