// Package config
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirphl/ml-trader/internal/tfutils"
)

/*
YAML config example:
wallex_api_key: "..."
symbol: "BTC-USDT"
interval: "1m"
risk_per_trade: 0.02
max_daily_loss: 0.05
stop_loss_pct: 0.02
take_profit_pct: 0.04
max_position_size: 0.1
max_open_positions: 3
min_confidence: 0.65
lookback_period: 200
min_signal_interval: 5m
buffer_size: 1000
max_reconnects: 5
model_path: "models/direction.onnx"
feature_columns: ["ema_9", "ema_21", "ema_200", "rsi", "atr", "volume_ratio", "volume_avg"]
postgres_dsn: "postgres://..."
kafka_broker: "localhost:9092"
telegram_token: "..."
*/

// Duration is a time.Duration that parses "5m" style YAML values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	WallexAPIKey string `yaml:"wallex_api_key"`

	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`

	RiskPerTrade      float64       `yaml:"risk_per_trade"`
	MaxDailyLoss      float64       `yaml:"max_daily_loss"`
	StopLossPct       float64       `yaml:"stop_loss_pct"`
	TakeProfitPct     float64       `yaml:"take_profit_pct"`
	MaxPositionSize   float64       `yaml:"max_position_size"`
	MaxOpenPositions  int           `yaml:"max_open_positions"`
	MinConfidence     float64       `yaml:"min_confidence"`
	LookbackPeriod    int           `yaml:"lookback_period"`
	MinSignalInterval Duration      `yaml:"min_signal_interval"`

	StreamURL     string        `yaml:"stream_url"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxReconnects int           `yaml:"max_reconnects"`
	BackoffCap    Duration      `yaml:"backoff_cap"`
	TickInterval  Duration      `yaml:"tick_interval"`

	ModelPath      string   `yaml:"model_path"`
	FeatureColumns []string `yaml:"feature_columns"`

	PostgresDSN      string `yaml:"postgres_dsn"`
	KafkaBroker      string `yaml:"kafka_broker"`
	KafkaTradesTopic string `yaml:"kafka_trades_topic"`
	KafkaEventsTopic string `yaml:"kafka_events_topic"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	LogLevel string `yaml:"log_level"`
}

// MustLoadConfig reads flags, an optional YAML file and environment
// overrides. It exits the process on an unreadable or invalid configuration.
func MustLoadConfig() Config {
	symbol := flag.String("symbol", "BTC-USDT", "Trading symbol")
	interval := flag.String("interval", "1m", "Candle interval")
	riskPerTrade := flag.Float64("risk-per-trade", 0.02, "Fraction of balance risked per trade")
	maxDailyLoss := flag.Float64("max-daily-loss", 0.05, "Daily loss limit as fraction of balance")
	stopLossPct := flag.Float64("stop-loss-pct", 0.02, "Stop loss distance as fraction of entry")
	takeProfitPct := flag.Float64("take-profit-pct", 0.04, "Take profit distance as fraction of entry")
	maxPositionSize := flag.Float64("max-position-size", 0.1, "Per-position cap as fraction of balance")
	maxOpenPositions := flag.Int("max-open-positions", 3, "Maximum simultaneous open positions")
	minConfidence := flag.Float64("min-confidence", 0.65, "Minimum signal confidence")
	lookbackPeriod := flag.Int("lookback-period", 200, "Candles pulled from the buffer per tick")
	minSignalInterval := flag.Duration("min-signal-interval", 5*time.Minute, "Per-symbol signal cooldown")
	bufferSize := flag.Int("buffer-size", 1000, "Candle buffer capacity")
	maxReconnects := flag.Int("max-reconnects", 5, "Stream reconnect attempts before giving up")
	backoffCap := flag.Duration("backoff-cap", 60*time.Second, "Maximum stream reconnect wait")
	tickInterval := flag.Duration("tick-interval", 5*time.Second, "Trading loop period")
	modelPath := flag.String("model-path", "", "Path to the ONNX direction model")
	featureColumns := flag.String("feature-columns", "", "Comma-separated model feature columns")
	kafkaBroker := flag.String("kafka-broker", "", "Kafka broker for the trade journal")
	kafkaTradesTopic := flag.String("kafka-trades-topic", "trades", "Kafka topic for closed trades")
	kafkaEventsTopic := flag.String("kafka-events-topic", "trade-events", "Kafka topic for operational events")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	var cfg Config
	if *configFile != "" {
		loaded, err := LoadFromFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		cfg = loaded
	} else {
		cfg = Config{
			Symbol:            *symbol,
			Interval:          *interval,
			RiskPerTrade:      *riskPerTrade,
			MaxDailyLoss:      *maxDailyLoss,
			StopLossPct:       *stopLossPct,
			TakeProfitPct:     *takeProfitPct,
			MaxPositionSize:   *maxPositionSize,
			MaxOpenPositions:  *maxOpenPositions,
			MinConfidence:     *minConfidence,
			LookbackPeriod:    *lookbackPeriod,
			MinSignalInterval: Duration(*minSignalInterval),
			BufferSize:        *bufferSize,
			MaxReconnects:     *maxReconnects,
			BackoffCap:        Duration(*backoffCap),
			TickInterval:      Duration(*tickInterval),
			ModelPath:         *modelPath,
			KafkaBroker:       *kafkaBroker,
			KafkaTradesTopic:  *kafkaTradesTopic,
			KafkaEventsTopic:  *kafkaEventsTopic,
			TelegramToken:     *telegramToken,
			TelegramChatID:    *telegramChatID,
			LogLevel:          *logLevel,
		}
		if *featureColumns != "" {
			cfg.FeatureColumns = strings.Split(*featureColumns, ",")
		}
	}

	// Secrets come from the environment, never from flags.
	if key := os.Getenv("WALLEX_API_KEY"); key != "" {
		cfg.WallexAPIKey = key
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// LoadFromFile parses a YAML config file. Defaults are applied, validation is
// the caller's responsibility.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.LookbackPeriod <= 0 {
		c.LookbackPeriod = 200
	}
	if c.MinSignalInterval <= 0 {
		c.MinSignalInterval = Duration(5 * time.Minute)
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = Duration(60 * time.Second)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = Duration(5 * time.Second)
	}
	if c.MaxOpenPositions <= 0 {
		c.MaxOpenPositions = 3
	}
	if c.KafkaTradesTopic == "" {
		c.KafkaTradesTopic = "trades"
	}
	if c.KafkaEventsTopic == "" {
		c.KafkaEventsTopic = "trade-events"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects configurations that would trade with a broken risk model.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !tfutils.IsValidInterval(c.Interval) {
		return fmt.Errorf("unsupported interval %q, must be one of %v", c.Interval, tfutils.GetSupportedIntervals())
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("risk_per_trade must be in (0, 1], got %v", c.RiskPerTrade)
	}
	if c.MaxDailyLoss <= 0 || c.MaxDailyLoss > 1 {
		return fmt.Errorf("max_daily_loss must be in (0, 1], got %v", c.MaxDailyLoss)
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0, 1), got %v", c.StopLossPct)
	}
	if c.TakeProfitPct <= 0 || c.TakeProfitPct >= 1 {
		return fmt.Errorf("take_profit_pct must be in (0, 1), got %v", c.TakeProfitPct)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("max_position_size must be in (0, 1], got %v", c.MaxPositionSize)
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in (0, 1], got %v", c.MinConfidence)
	}
	if c.LookbackPeriod < 50 {
		return fmt.Errorf("lookback_period must be at least 50, got %d", c.LookbackPeriod)
	}
	return nil
}
