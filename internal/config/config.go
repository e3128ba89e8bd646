package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"dev"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	MarketBaseURL string `env:"MARKET_BASE_URL,notEmpty"`
	MarketTenant  string `env:"MARKET_TENANT" envDefault:"default"`
	MarketToken   string `env:"MARKET_TOKEN"`
	MarketRPS     int    `env:"MARKET_RPS" envDefault:"8"`

	ScanPageSize      int           `env:"SCAN_PAGE_SIZE" envDefault:"100"`
	ScanOffsetCeiling int           `env:"SCAN_OFFSET_CEILING" envDefault:"10000"`
	ExecConcurrency   int           `env:"EXEC_CONCURRENCY" envDefault:"4"`
	JobConcurrency    int           `env:"JOB_CONCURRENCY" envDefault:"2"`
	RetryAttempts     int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY" envDefault:"250ms"`
	DequeueBlock      time.Duration `env:"DEQUEUE_BLOCK" envDefault:"5s"`
	RequeueAfter      time.Duration `env:"REQUEUE_AFTER" envDefault:"30s"`

	PriceGapCeiling float64 `env:"PRICE_GAP_CEILING" envDefault:"70"`
	PriceBandMin    float64 `env:"PRICE_BAND_MIN" envDefault:"5"`
	PriceBandMax    float64 `env:"PRICE_BAND_MAX" envDefault:"40"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}
