package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/amirphl/ml-trader/internal/bot"
	"github.com/amirphl/ml-trader/internal/config"
	"github.com/amirphl/ml-trader/internal/exchange"
	"github.com/amirphl/ml-trader/internal/journal"
	"github.com/amirphl/ml-trader/internal/ml"
	"github.com/amirphl/ml-trader/internal/notifier"
	"github.com/amirphl/ml-trader/internal/risk"
	"github.com/amirphl/ml-trader/internal/strategy"
	"github.com/amirphl/ml-trader/internal/stream"
	"github.com/amirphl/ml-trader/internal/utils"
)

func main() {
	cfg := config.MustLoadConfig()
	utils.SetLevel(cfg.LogLevel)
	logger := utils.GetLogger()
	logger.Infof("Main | Starting ml-trader for %s %s", cfg.Symbol, cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway := exchange.NewWallexGateway(cfg.WallexAPIKey)

	classifier := ml.NewONNXClassifier(cfg.ModelPath, cfg.FeatureColumns)
	if classifier.IsLoaded() {
		logger.Infof("Main | Loaded classifier model from %s", cfg.ModelPath)
	} else {
		logger.Warn("Main | Classifier unavailable, trading on technical signals only")
	}

	sink := buildJournal(cfg)
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Errorf("Main | Failed to close journal: %v", err)
		}
	}()

	var notif notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notif = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		logger.Info("Main | Telegram notifications enabled")
	}

	ingestor, err := stream.New(stream.Config{
		URL:           cfg.StreamURL,
		Symbol:        cfg.Symbol,
		Interval:      cfg.Interval,
		BufferSize:    cfg.BufferSize,
		MaxReconnects: cfg.MaxReconnects,
		BackoffCap:    cfg.BackoffCap.Std(),
	})
	if err != nil {
		logger.Fatalf("Main | Failed to create market stream: %v", err)
	}

	generator := strategy.NewGenerator(strategy.Config{
		MinConfidence:     cfg.MinConfidence,
		MinSignalInterval: cfg.MinSignalInterval.Std(),
		FeatureColumns:    cfg.FeatureColumns,
	}, classifier)

	riskMgr := risk.NewManager(risk.Config{
		RiskPerTrade:     cfg.RiskPerTrade,
		MaxDailyLoss:     cfg.MaxDailyLoss,
		StopLossPct:      cfg.StopLossPct,
		TakeProfitPct:    cfg.TakeProfitPct,
		MaxPositionSize:  cfg.MaxPositionSize,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MinConfidence:    cfg.MinConfidence,
	})

	trader := bot.New(bot.Config{
		Symbol:         cfg.Symbol,
		LookbackPeriod: cfg.LookbackPeriod,
		TickInterval:   cfg.TickInterval.Std(),
	}, gateway, ingestor, generator, riskMgr, sink, notif)

	if err := trader.Initialize(ctx); err != nil {
		logger.Fatalf("Main | Initialization failed: %v", err)
	}

	if err := trader.Run(ctx); err != nil {
		logger.Fatalf("Main | Trading loop failed: %v", err)
	}
	logger.Info("Main | Shutdown complete")
}

// buildJournal assembles the trade sinks from config. Postgres and Kafka are
// both optional; when neither is configured trades stay in memory only.
func buildJournal(cfg config.Config) journal.TradeSink {
	logger := utils.GetLogger()
	var sinks []journal.TradeSink

	if cfg.PostgresDSN != "" {
		pg, err := journal.NewPostgresSink(cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("Main | Failed to connect to postgres journal: %v", err)
		}
		logger.Info("Main | Postgres journal enabled")
		sinks = append(sinks, pg)
	}

	if cfg.KafkaBroker != "" {
		kf, err := journal.NewKafkaSink(cfg.KafkaBroker, cfg.KafkaTradesTopic, cfg.KafkaEventsTopic)
		if err != nil {
			logger.Fatalf("Main | Failed to connect to kafka journal: %v", err)
		}
		logger.Infof("Main | Kafka journal enabled on %s", cfg.KafkaBroker)
		sinks = append(sinks, kf)
	}

	if len(sinks) == 0 {
		logger.Warn("Main | No durable journal configured, keeping trades in memory")
		return journal.NewMemorySink()
	}
	return journal.NewMultiSink(sinks...)
}
