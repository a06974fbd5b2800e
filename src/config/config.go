package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"spot-engine/src/engine"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Log     LogConfig
	Fees    FeeConfig
	Limits  LimitsConfig
	Service ServiceConfig
	Store   StoreConfig
	Kafka   KafkaConfig
}

type LogConfig struct {
	Level                  string `env:"LOG_LEVEL" envDefault:"info"`
	File                   string `env:"LOG_FILE"`
	Format                 string `env:"LOG_FORMAT" envDefault:"json"`
	RequestLoggingDisabled bool   `env:"REQUEST_LOGGING_DISABLED"`
}

type FeeConfig struct {
	Rate      string            `env:"FEE_RATE" envDefault:"0.001"`
	Overrides map[string]string `env:"FEE_RATE_OVERRIDES" envSeparator:"," envKeyValSeparator:":"`
	QueueSize int               `env:"FEE_QUEUE_SIZE" envDefault:"4096"`
}

// LimitsConfig bounds the size of query results.
type LimitsConfig struct {
	DefaultDepth   int `env:"ORDERBOOK_DEFAULT_DEPTH" envDefault:"10"`
	MaxDepth       int `env:"ORDERBOOK_MAX_DEPTH" envDefault:"1000"`
	DefaultTrades  int `env:"TRADES_DEFAULT_LIMIT" envDefault:"100"`
	MaxTrades      int `env:"TRADES_MAX_LIMIT" envDefault:"1000"`
	DefaultCandles int `env:"CANDLES_DEFAULT_LIMIT" envDefault:"100"`
	MaxCandles     int `env:"CANDLES_MAX_LIMIT" envDefault:"1000"`
	DefaultOrders  int `env:"ORDERS_DEFAULT_LIMIT" envDefault:"100"`
	MaxOrders      int `env:"ORDERS_MAX_LIMIT" envDefault:"1000"`
}

// CandlesCeiling is the largest CANDLES_MAX_LIMIT accepted.
const CandlesCeiling = 10000

type ServiceConfig struct {
	MaxConcurrentRequests int64 `env:"MAX_CONCURRENT_REQUESTS"`
	MaintenanceMode       bool  `env:"MAINTENANCE_MODE"`
	MetricsMaxLatencies   int   `env:"METRICS_MAX_LATENCIES" envDefault:"10000"`
}

type StoreConfig struct {
	Dir  string `env:"STORE_DIR"`
	Sync bool   `env:"STORE_SYNC" envDefault:"true"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_FEE_TOPIC" envDefault:"trade-fees"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.FeeSchedule(); err != nil {
		return err
	}
	l := c.Limits
	if l.DefaultDepth <= 0 || l.MaxDepth < l.DefaultDepth {
		return errors.New("orderbook depth limits must be positive and default <= max")
	}
	if l.DefaultTrades <= 0 || l.MaxTrades < l.DefaultTrades {
		return errors.New("trade limits must be positive and default <= max")
	}
	if l.DefaultCandles <= 0 || l.MaxCandles < l.DefaultCandles {
		return errors.New("candle limits must be positive and default <= max")
	}
	if l.MaxCandles > CandlesCeiling {
		return errors.Errorf("CANDLES_MAX_LIMIT must not exceed %d", CandlesCeiling)
	}
	if l.DefaultOrders <= 0 || l.MaxOrders < l.DefaultOrders {
		return errors.New("order listing limits must be positive and default <= max")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// FeeSchedule converts the configured rates into decimals.
func (c *Config) FeeSchedule() (engine.FeeSchedule, error) {
	rate, err := parseRate(c.Fees.Rate)
	if err != nil {
		return engine.FeeSchedule{}, errors.Wrap(err, "FEE_RATE")
	}
	schedule := engine.FeeSchedule{
		Default:   rate,
		Overrides: make(map[string]decimal.Decimal, len(c.Fees.Overrides)),
	}
	for instrument, raw := range c.Fees.Overrides {
		r, err := parseRate(raw)
		if err != nil {
			return engine.FeeSchedule{}, errors.Wrapf(err, "FEE_RATE_OVERRIDES[%s]", instrument)
		}
		schedule.Overrides[instrument] = r
	}
	return schedule, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("rate %s outside [0, 1)", raw)
	}
	return rate, nil
}
