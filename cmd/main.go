package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ppg-screening/internal/analysis"
	"ppg-screening/internal/bp"
	"ppg-screening/internal/cache"
	"ppg-screening/internal/config"
	"ppg-screening/internal/database"
	"ppg-screening/internal/handler"
	"ppg-screening/internal/i18n"
	"ppg-screening/internal/logging"
	"ppg-screening/internal/models"
	"ppg-screening/internal/report"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const housekeepingInterval = time.Minute

func main() {
	log.Println("Starting PPG screening service...")
	cfg := config.LoadConfig()

	logger, logCloser, err := logging.NewLogger(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName,
		File:        cfg.LogFile,
		ToConsole:   cfg.LogToConsole,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()
	logConfiguration(cfg, logger)

	var catalog *i18n.Catalog
	if cfg.CatalogPath != "" {
		catalog, err = i18n.Load(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load message catalog", zap.Error(err))
		}
	} else {
		catalog = i18n.Default()
	}

	repo, err := database.NewRepository(cfg.DBDriver, cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publishers []handler.ReportPublisher
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("report cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer rdb.Close()
			publishers = append(publishers, cache.NewReportCache(cache.NewRedisKVStore(rdb), cfg.ReportCacheTTL, logger))
		}
	}
	if cfg.ReportAPIEndpoint != "" {
		publishers = append(publishers, handler.NewAPIForwarder(cfg.ReportAPIEndpoint, cfg.ReportAPIKey, logger))
	}

	assembler := report.NewAssembler(bp.NewEstimator(cfg.BPSeed, cfg.BPJitter))
	opts := handler.ProcessorOptions{
		Analyzer:    analysis.New(cfg.Thresholds()),
		Translator:  catalog,
		WorkflowTTL: cfg.WorkflowTTL,
	}

	// The MQTT client needs the processor for its handler and the processor
	// publishes through the client, so the publisher is attached late.
	mqttPublisher := &lateMQTTPublisher{}
	publishers = append(publishers, mqttPublisher)
	processor := handler.NewScreeningProcessor(repo, assembler, opts, logger, publishers...)

	mqttClient, err := handler.InitializeMQTT(cfg, processor, logger)
	if err != nil {
		logger.Fatal("failed to initialize MQTT client", zap.Error(err))
	}
	defer mqttClient.Disconnect(250)
	mqttPublisher.set(handler.NewMQTTPublisher(mqttClient))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutdown signal received, closing consumers")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3) // MQTT, Kafka consumer, housekeeping

	go func() {
		defer wg.Done()
		<-ctx.Done()
		logger.Info("shutting down MQTT client")
	}()

	go func() {
		defer wg.Done()
		runConsumer(ctx, cfg, cfg.CaptureTopic, processor.HandleCaptureMessage, logger)
	}()

	go func() {
		defer wg.Done()
		processor.RunHousekeepingCycle(ctx, housekeepingInterval)
	}()

	logger.Info("service started, waiting for messages")
	wg.Wait()
	logger.Info("all services closed, exiting")
}

type lateMQTTPublisher struct {
	mu  sync.RWMutex
	pub *handler.MQTTPublisher
}

func (l *lateMQTTPublisher) set(p *handler.MQTTPublisher) {
	l.mu.Lock()
	l.pub = p
	l.mu.Unlock()
}

func (l *lateMQTTPublisher) Publish(ctx context.Context, p models.ReportPayload) error {
	l.mu.RLock()
	pub := l.pub
	l.mu.RUnlock()
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, p)
}

func runConsumer(ctx context.Context, cfg *config.Config, topic string, handlerFunc func([]byte), logger *zap.Logger) {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBrokers,
		"group.id":          cfg.ConsumerGroup,
		"auto.offset.reset": "earliest",
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.String("topic", topic), zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(topic, nil); err != nil {
		logger.Fatal("failed to subscribe", zap.String("topic", topic), zap.Error(err))
	}

	logger.Info("consumer started", zap.String("topic", topic), zap.String("group_id", cfg.ConsumerGroup))

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping consumer", zap.String("topic", topic))
			return
		default:
			ev := consumer.Poll(100)
			if ev == nil {
				continue
			}
			switch e := ev.(type) {
			case *kafka.Message:
				handlerFunc(e.Value)
			case kafka.Error:
				logger.Error("kafka error", zap.String("code", e.Code().String()), zap.Error(e))
			}
		}
	}
}

func logConfiguration(cfg *config.Config, logger *zap.Logger) {
	logger.Info("service configuration",
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("capture_topic", cfg.CaptureTopic),
		zap.String("mqtt_broker", cfg.MQTTBroker),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("db_path", cfg.DBPath),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("report_api_endpoint", cfg.ReportAPIEndpoint),
		zap.String("report_api_key", secretState(cfg.ReportAPIKey)),
		zap.String("mqtt_password", secretState(cfg.MQTTPassword)),
		zap.Duration("workflow_ttl", cfg.WorkflowTTL),
		zap.Float64("bp_jitter", cfg.BPJitter),
	)
}

func secretState(v string) string {
	if v != "" {
		return "[SET]"
	}
	return "[NOT SET]"
}
