package bootstrap

import (
	"context"
	"sync"

	chclient "irrigation/internal/adapters/clickhouse"
	"irrigation/internal/adapters/config"
	"irrigation/internal/adapters/kafka"
	pgclient "irrigation/internal/adapters/postgres"
	redisclient "irrigation/internal/adapters/redis"
	"irrigation/internal/api"
	"irrigation/internal/api/advisor"
	"irrigation/internal/api/health"
	"irrigation/internal/consumers"
	"irrigation/internal/events"
	"irrigation/internal/ml/bundle"
	mltraining "irrigation/internal/ml/training"
	chrepo "irrigation/internal/repository/clickhouse"
	pgrepo "irrigation/internal/repository/postgres"
	"irrigation/internal/services/prediction"
	"irrigation/internal/services/training"
	"irrigation/internal/workers"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores). Each one is optional.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Services    *Services
	Adapters    *Adapters
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups persistence for bundles, training runs and the prediction audit log
type Repositories struct {
	Bundles       bundle.Store
	TrainingRuns  *pgrepo.TrainingRunRepository  // nil unless Postgres is enabled
	PredictionLog *chrepo.PredictionLogRepository // nil unless ClickHouse is enabled
}

// Services groups the application services
type Services struct {
	Prediction *prediction.Service
	Training   *training.Service
	Pipeline   *mltraining.Pipeline
}

// Adapters groups external messaging adapters
type Adapters struct {
	KafkaProducer       *kafka.Producer
	ModelEventsConsumer *kafka.Consumer
	Publisher           *events.Publisher
}

// Application groups application layer components
type Application struct {
	HTTPServer     *api.Server
	HealthHandler  *health.Handler
	AdvisorHandler *advisor.Handler
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler *workers.Scheduler
	ModelEventsSvc  *consumers.ModelEventsConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Services:    &Services{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBackground()
	c.MustInitApplication()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.PredictionLog != nil {
		c.Repos.PredictionLog.Start(c.Context)
		c.Log.Info("✓ Prediction audit log started")
	}

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.startConsumers()

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// startConsumers starts Kafka consumers in background goroutines
func (c *Container) startConsumers() {
	if c.Background.ModelEventsSvc == nil {
		return
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Background.ModelEventsSvc.Start(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorw("Model events consumer failed", "error", err)
		}
	}()

	c.Log.Infow("✓ Event consumers started", "consumers", []string{"model_events"})
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all other components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:                  c.WG,
		HTTPServer:          c.Application.HTTPServer,
		WorkerScheduler:     c.Background.WorkerScheduler,
		ModelEventsConsumer: c.Adapters.ModelEventsConsumer,
		PredictionLog:       c.Repos.PredictionLog,
		KafkaProducer:       c.Adapters.KafkaProducer,
		PG:                  c.PG,
		CH:                  c.CH,
		Redis:               c.Redis,
		ErrorTracker:        c.ErrorTracker,
	}, c.Log)
}
