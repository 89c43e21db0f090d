package main

import (
	"freightline/api_compass/internal/access"
	compassconfig "freightline/api_compass/internal/config"
	"freightline/api_compass/internal/datasvc"
	"freightline/api_compass/internal/insight"
	"freightline/api_compass/internal/knowledge"
	"freightline/api_compass/internal/metering"
	"freightline/api_compass/pkg/config"
	"freightline/api_compass/pkg/database"
	"freightline/api_compass/pkg/kafka"
	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
	"freightline/api_compass/pkg/monitoring"
	"freightline/api_compass/pkg/server"
	"freightline/api_compass/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("compass")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Compass (freight analytics assistant)")

	cfg := compassconfig.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("compass", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("compass", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"JWT_SECRET":   cfg.JWTSecret,
	}))

	// Model providers: capable tier answers, fast tier classifies and compiles
	capableProvider, err := llm.NewProvider(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Warn("Capable model provider unavailable - queries will fail until configured")
	}
	fastProvider, err := llm.NewProvider(llm.LoadFastConfig())
	if err != nil {
		logger.WithError(err).Warn("Fast model provider unavailable - falling back to capable tier")
		fastProvider = nil
	}

	// Optional Kafka producer for billing usage events
	var usagePublisher *metering.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "compass", logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka producer - usage events disabled")
		} else {
			defer func() { _ = producer.Close() }()
			healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.Client()))
			usagePublisher = metering.NewPublisher(producer, logger)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set - usage events disabled")
	}

	usageTracker := metering.NewTracker(metering.TrackerConfig{
		DB:            db,
		Publisher:     usagePublisher,
		Logger:        logger,
		FlushInterval: cfg.UsageFlushInterval,
	})
	usageTracker.Start()
	defer usageTracker.Stop()

	// Ledger data service client
	ledger := datasvc.NewClient(datasvc.Config{
		BaseURL:      cfg.LedgerURL,
		ServiceToken: cfg.ServiceToken,
		Timeout:      cfg.ToolTimeout,
		Logger:       logger,
	})

	knowledgeStore := knowledge.NewStore(db)
	contextCompiler := knowledge.NewCompiler(knowledgeStore, logger)
	privileges := access.NewChecker(db, logger)
	executor := insight.NewExecutor(ledger, logger)
	agent := insight.NewAgent(insight.AgentConfig{
		Executor:        executor,
		Logger:          logger,
		ToolConcurrency: cfg.ToolConcurrency,
	})
	breaker := insight.NewBreaker(insight.BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Logger:           logger,
	})

	engine := insight.NewEngine(insight.EngineConfig{
		Capable:         capableProvider,
		Fast:            fastProvider,
		Compiler:        contextCompiler,
		Privileges:      privileges,
		Usage:           knowledgeStore,
		Agent:           agent,
		Filters:         insight.NewFilterCompiler(fastProvider, logger),
		Breaker:         breaker,
		Recorder:        usageTracker,
		Logger:          logger,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
	})

	router := server.SetupServiceRouter(logger, "compass", healthChecker, metricsCollector)
	insight.NewHandler(engine, logger).Register(router, []byte(cfg.JWTSecret))

	serverConfig := server.DefaultConfig("compass", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited")
	}
}
