package bootstrap

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	chclient "irrigation/internal/adapters/clickhouse"
	"irrigation/internal/adapters/config"
	errnoop "irrigation/internal/adapters/errors/noop"
	"irrigation/internal/adapters/errors/sentry"
	"irrigation/internal/adapters/kafka"
	pgclient "irrigation/internal/adapters/postgres"
	redisclient "irrigation/internal/adapters/redis"
	"irrigation/internal/api"
	"irrigation/internal/api/advisor"
	"irrigation/internal/api/health"
	"irrigation/internal/consumers"
	"irrigation/internal/domain/irrigation"
	"irrigation/internal/events"
	"irrigation/internal/metrics"
	"irrigation/internal/ml"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	mltraining "irrigation/internal/ml/training"
	chrepo "irrigation/internal/repository/clickhouse"
	pgrepo "irrigation/internal/repository/postgres"
	redisrepo "irrigation/internal/repository/redis"
	"irrigation/internal/services/prediction"
	"irrigation/internal/services/training"
	"irrigation/pkg/auth"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

const connectTimeout = 15 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
	c.Lifecycle.SetHTTPTimeout(cfg.HTTP.ShutdownTimeout)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the data stores that are enabled
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	var err error

	if c.Config.Postgres.Enabled {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}

	if c.Config.Model.Store == "redis" {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the bundle store and the optional history stores
func (c *Container) MustInitRepositories() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	c.Repos.Bundles = provideBundleStore(c.Config, c.Redis, c.Log)

	if c.PG != nil {
		repo := pgrepo.NewTrainingRunRepository(c.PG.DB())
		if err := repo.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare training_runs table: %v", err)
		}
		c.Repos.TrainingRuns = repo

		metrics.RegisterTrainingHistoryCollector(metrics.NewTrainingHistoryCollector(c.Log, c.PG.DB()))
		c.Log.Info("✓ Training run history enabled (PostgreSQL)")
	}

	if c.CH != nil {
		repo := chrepo.NewPredictionLogRepository(c.CH.Conn(), chrepo.PredictionLogConfig{
			BatchSize:     c.Config.ClickHouse.BatchSize,
			FlushInterval: c.Config.ClickHouse.FlushInterval,
		})
		if err := repo.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare prediction_log table: %v", err)
		}
		c.Repos.PredictionLog = repo
		c.Log.Info("✓ Prediction audit log enabled (ClickHouse)")
	}
}

// ========================================
// Phase 4: Messaging Adapters
// ========================================

// MustInitAdapters initializes Kafka when enabled
func (c *Container) MustInitAdapters() {
	if !c.Config.Kafka.Enabled {
		c.Log.Info("Kafka disabled, model events will not be published")
		return
	}

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Config.Kafka.ModelEventsTopic, c.Log)

	// Every replica must see every event, so each one gets its own group
	c.Adapters.ModelEventsConsumer = provideKafkaConsumer(
		c.Config,
		c.Config.Kafka.ModelEventsTopic,
		kafka.ConsumerGroupPrefix+"-"+c.Adapters.Publisher.Hostname(),
		c.Log,
	)
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices builds the prediction and training services and loads the startup bundle
func (c *Container) MustInitServices() {
	if path := c.Config.Model.ONNXLibraryPath; path != "" {
		if err := ml.InitRuntime(path); err != nil {
			c.Log.Fatalf("failed to initialize ONNX runtime: %v", err)
		}
		c.Log.Infow("✓ ONNX runtime initialized", "library", path)
	}

	var audit irrigation.PredictionLog
	if c.Repos.PredictionLog != nil {
		audit = c.Repos.PredictionLog
	}
	c.Services.Prediction = prediction.NewService(audit, c.Log.Component("prediction"))

	c.loadStartupBundle()

	pipeline, err := mltraining.NewPipeline(providePipelineOptions(c.Config))
	if err != nil {
		c.Log.Fatalf("invalid training configuration: %v", err)
	}
	c.Services.Pipeline = pipeline

	trainingCfg := training.Config{
		Pipeline:  pipeline,
		Store:     c.Repos.Bundles,
		Predictor: c.Services.Prediction,
		Timeout:   c.Config.Training.Timeout,
	}
	if c.Repos.TrainingRuns != nil {
		trainingCfg.Runs = c.Repos.TrainingRuns
	}
	if c.Adapters.Publisher != nil {
		trainingCfg.Events = c.Adapters.Publisher
	}
	c.Services.Training = training.NewService(trainingCfg, c.Log.Component("training"))

	c.Log.Info("✓ Services initialized")
}

// loadStartupBundle activates the stored bundle. A missing or unreadable
// bundle is not fatal: the service starts and answers 503 until a retrain.
func (c *Container) loadStartupBundle() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	_, err := c.Services.Prediction.Reload(ctx, c.Repos.Bundles, prediction.SourceStartup)
	switch {
	case err == nil:
		b := c.Services.Prediction.Active()
		c.Log.Infow("✓ Model bundle loaded", "bundle_id", b.ID(), "features", b.Order())
	case errors.Is(err, errors.ErrNotFound):
		c.Log.Warn("No model bundle found, predictions are unavailable until the first retrain")
	default:
		c.Log.Errorw("Failed to load model bundle, predictions are unavailable until the next retrain", "error", err)
	}
}

// ========================================
// Phase 6: Background Processing
// ========================================

// MustInitBackground initializes background workers and consumers
func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler = provideWorkers(c.Config, c.Services.Prediction, c.Repos.Bundles, c.Log)

	if c.Adapters.ModelEventsConsumer != nil {
		c.Background.ModelEventsSvc = consumers.NewModelEventsConsumer(
			c.Adapters.ModelEventsConsumer,
			c.Services.Prediction,
			c.Repos.Bundles,
			prediction.SourceSync,
			c.Log,
		)
	}

	c.Log.Info("✓ Background processing initialized")
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication wires the HTTP surface
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = provideHealthHandler(c)

	advisorCfg := advisor.Config{
		Predictor:      c.Services.Prediction,
		Trainer:        c.Services.Training,
		RetrainLimiter: provideRetrainLimiter(c.Config),
		MaxUploadBytes: c.Config.Training.MaxUploadMB << 20,
	}
	if c.Repos.PredictionLog != nil {
		advisorCfg.Summaries = c.Repos.PredictionLog
	}
	if tokens := provideTokenService(c.Config); tokens != nil {
		advisorCfg.Tokens = tokens
	} else {
		c.Log.Warn("HTTP_ADMIN_JWT_SECRET is empty, /retrain accepts unauthenticated requests")
	}
	c.Application.AdvisorHandler = advisor.NewHandler(advisorCfg, c.Log)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:        c.Config.HTTP.Port,
		ReadTimeout: c.Config.HTTP.ReadTimeout,
		IdleTimeout: c.Config.HTTP.IdleTimeout,
		ServiceName: c.Config.App.Name,
		Version:     c.Config.App.Version,
		CORSOrigins: c.Config.HTTP.CORSOrigins,
	}, c.Application.HealthHandler, c.Application.AdvisorHandler, c.Log)
}

// ========================================
// Helper Provider Functions
// ========================================

// provideTokenService returns nil when admin auth is disabled
func provideTokenService(cfg *config.Config) *auth.JWTService {
	if !cfg.Auth.Enabled() {
		return nil
	}
	return auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideBundleStore(cfg *config.Config, redis *redisclient.Client, log *logger.Logger) bundle.Store {
	if cfg.Model.Store == "redis" {
		log.Infow("Using Redis bundle store", "key", cfg.Model.RedisKey)
		return redisrepo.NewBundleStore(redis.Client(), cfg.Model.RedisKey)
	}

	log.Infow("Using file bundle store", "path", cfg.Model.Path)
	return bundle.NewFileStore(cfg.Model.Path)
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Infow("Initializing Kafka producer...", "brokers", cfg.Kafka.Brokers)
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: 10 * time.Second,
	})
	log.Info("✓ Kafka producer initialized")
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic, groupID string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic, "group_id", groupID)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: groupID,
		Topic:   topic,
	})
	log.Infow("✓ Kafka consumer initialized", "topic", topic)
	return consumer
}

func providePipelineOptions(cfg *config.Config) mltraining.Options {
	t := cfg.Training
	return mltraining.Options{
		Classifier:      t.Classifier,
		Encoding:        features.Encoding(t.Encoding),
		IncludeCropID:   t.IncludeCropID,
		ValidationSplit: t.ValidationSplit,
		Seed:            t.Seed,
		MinExamples:     t.MinExamples,
		Threshold:       classifier.DefaultThreshold,
		Hyper: classifier.Options{
			Epochs:       t.Epochs,
			LearningRate: t.LearningRate,
			L2:           t.L2,
		},
	}
}

// provideRetrainLimiter returns nil (unlimited) when the rate is not positive
func provideRetrainLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.Training.RetrainPerMin <= 0 {
		return nil
	}
	burst := cfg.Training.RetrainBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.Training.RetrainPerMin/60), burst)
}

func provideHealthHandler(c *Container) *health.Handler {
	h := health.New(c.Log, c.Config.App.Name, c.Config.App.Version)

	predictor := c.Services.Prediction
	h.AddCheck("model", func(ctx context.Context) error {
		if predictor.Active() == nil {
			return errors.ErrModelNotLoaded
		}
		return nil
	}, true)

	if c.PG != nil {
		h.AddCheck("postgres", c.PG.Health, false)
	}
	if c.CH != nil {
		h.AddCheck("clickhouse", c.CH.Health, false)
	}
	if c.Redis != nil {
		h.AddCheck("redis", c.Redis.Health, false)
	}

	h.AddDetails("model", func() interface{} {
		info, err := predictor.ModelInfo()
		if err != nil {
			return map[string]string{"status": "not_loaded"}
		}
		return map[string]interface{}{
			"model_id":   info.ModelID,
			"classifier": info.Classifier,
			"encoding":   info.Encoding,
			"features":   info.Features,
		}
	})

	scheduler := c.Background.WorkerScheduler
	if scheduler != nil {
		h.AddDetails("workers", func() interface{} { return scheduler.Health() })
	}

	if c.Repos.PredictionLog != nil {
		audit := c.Repos.PredictionLog
		h.AddDetails("prediction_log", func() interface{} {
			return map[string]int{"pending": audit.Pending()}
		})
	}

	return h
}
