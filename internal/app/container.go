package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/gadfly/internal/engine"
	"github.com/felixgeelhaar/gadfly/internal/engine/consumers"
	nagApp "github.com/felixgeelhaar/gadfly/internal/nagging/application"
	"github.com/felixgeelhaar/gadfly/internal/phrases"
	sharedApplication "github.com/felixgeelhaar/gadfly/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/recordstore"
	"github.com/felixgeelhaar/gadfly/pkg/config"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry
	Clock   sharedDomain.Clock

	// Persistence
	DBConn      database.Connection
	RedisClient *redis.Client
	Store       recordstore.Store
	OutboxRepo  outbox.Repository
	UnitOfWork  sharedApplication.UnitOfWork

	// Messaging
	EventPublisher  eventbus.Publisher
	EventConsumer   *eventbus.RabbitMQConsumer
	Bus             *eventbus.InProcessEventBus
	OutboxProcessor *outbox.Processor

	// Phrases
	Phrases      phrases.Provider
	phrasePlugin *phrases.PluginProvider

	Notifier   nagApp.Notifier
	Engine     *engine.Engine
	TaskEvents *consumers.TaskEventConsumer
}

// Option customizes a container before it is wired.
type Option func(*Container)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock sharedDomain.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// WithNotifier replaces the notifier chosen from config.
func WithNotifier(n nagApp.Notifier) Option {
	return func(c *Container) { c.Notifier = n }
}

// NewContainer wires every dependency from config and restores the engine
// from the configured store.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
		Clock:   sharedDomain.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initMessaging(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPhrases(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEngine(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initConsumers(); err != nil {
		c.Close()
		return nil, err
	}

	pc := outbox.DefaultProcessorConfig()
	if cfg.OutboxPollInterval > 0 {
		pc.PollInterval = cfg.OutboxPollInterval
	}
	if cfg.OutboxBatchSize > 0 {
		pc.BatchSize = cfg.OutboxBatchSize
	}
	if cfg.OutboxMaxRetries > 0 {
		pc.MaxRetries = cfg.OutboxMaxRetries
	}
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, pc, logger,
		outbox.WithMetrics(c.Metrics),
	)

	logger.Info("container ready",
		"store", cfg.Store,
		"broker", c.brokerName(),
		"tone", cfg.Tone,
	)
	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Store {
	case config.StoreMemory:
		c.useMemoryStore()

	case config.StoreRedis:
		client, err := recordstore.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			c.Logger.Warn("Redis not available, using memory store", "error", err)
			c.useMemoryStore()
			return nil
		}
		c.RedisClient = client
		store := recordstore.NewRedisStore(client, recordstore.DefaultRedisNamespace)
		c.Store = store
		c.OutboxRepo = outbox.NewMemoryRepository()
		c.UnitOfWork = sharedApplication.NoopUnitOfWork{}
		c.Health.Register("store", observability.PingChecker("redis", observability.HealthStatusUnhealthy, store.Ping))

	case config.StoreSQL:
		conn, err := database.Open(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		c.DBConn = conn
		if err := migrations.Run(ctx, conn); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		store := recordstore.NewSQLStore(conn, cfg.RecordTable)
		if cfg.RecordTable != recordstore.DefaultTable {
			if err := store.EnsureTable(ctx); err != nil {
				return err
			}
		}
		c.Store = store
		c.OutboxRepo = outbox.NewSQLRepository(conn)
		c.UnitOfWork = database.NewUnitOfWork(conn)
		c.Health.Register("store", observability.PingChecker(conn.Driver().String(), observability.HealthStatusUnhealthy, conn.Ping))
		c.Logger.Info("database connected", "driver", conn.Driver())

	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidStore, cfg.Store)
	}
	return nil
}

func (c *Container) useMemoryStore() {
	c.Store = recordstore.NewMemoryStore()
	c.OutboxRepo = outbox.NewMemoryRepository()
	c.UnitOfWork = sharedApplication.NoopUnitOfWork{}
}

// initMessaging publishes through RabbitMQ when configured and through
// the in-process bus otherwise.
func (c *Container) initMessaging() error {
	cfg := c.Config
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			c.Health.Register("broker", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, publisher.Healthy))

			registry := eventbus.NewConsumerRegistry(c.Logger)
			registry.Instrument(c.Metrics)
			consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
				URL:    cfg.RabbitMQURL,
				Logger: c.Logger,
			}, registry)
			if err != nil {
				return fmt.Errorf("failed to create RabbitMQ consumer: %w", err)
			}
			c.EventConsumer = consumer
			c.Health.Register("broker_consumer", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, consumer.Healthy))
			return nil
		}
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using in-process bus", "error", err)
	}

	c.Bus = eventbus.NewInProcessEventBus(c.Logger)
	c.Bus.Instrument(c.Metrics)
	c.EventPublisher = c.Bus
	return nil
}

func (c *Container) brokerName() string {
	if c.EventConsumer != nil {
		return "rabbitmq"
	}
	return "in-process"
}

// initPhrases chains a phrase-pack plugin, if any, in front of the catalog.
// A plugin that fails to start is logged and skipped.
func (c *Container) initPhrases() error {
	cfg := c.Config

	catalog := phrases.Default()
	if cfg.PhrasesFile != "" {
		loaded, err := phrases.LoadFile(cfg.PhrasesFile)
		if err != nil {
			return fmt.Errorf("failed to load phrases: %w", err)
		}
		catalog = catalog.Merge(loaded)
	}

	if cfg.PhrasePlugin == "" {
		c.Phrases = catalog
		return nil
	}

	plugin, err := phrases.Launch(phrases.LaunchOptions{
		Path:     cfg.PhrasePlugin,
		Checksum: cfg.PhrasePluginChecksum,
		Logger:   c.Logger,
	})
	if err != nil {
		c.Logger.Warn("phrase pack unavailable, using catalog", "path", cfg.PhrasePlugin, "error", err)
		c.Phrases = catalog
		return nil
	}
	c.phrasePlugin = plugin
	c.Health.Register("phrase_pack", observability.PingChecker("phrasepack", observability.HealthStatusDegraded, plugin.Healthy))
	c.Phrases = phrases.NewChain(c.Logger, plugin, catalog)
	return nil
}

func (c *Container) initEngine(ctx context.Context) error {
	ecfg, err := c.Config.Engine()
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(c.Config.UserID)
	if err != nil {
		return fmt.Errorf("invalid GADFLY_USER_ID: %w", err)
	}

	c.Engine = engine.New(ecfg, engine.Deps{
		Store:      c.Store,
		UnitOfWork: c.UnitOfWork,
		Outbox:     c.OutboxRepo,
		Phrases:    c.Phrases,
		Clock:      c.Clock,
		Metrics:    c.Metrics,
		Logger:     c.Logger,
		UserID:     userID,
	})
	if err := c.Engine.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore engine: %w", err)
	}
	return nil
}

func (c *Container) initConsumers() error {
	if c.Notifier == nil {
		if c.Config.NotifyWebhook != "" {
			c.Notifier = nagApp.NewWebhookNotifier(c.Config.NotifyWebhook, &http.Client{Timeout: c.Config.NotifyTimeout})
		} else {
			c.Notifier = nagApp.NewLogNotifier(c.Logger)
		}
	}

	delivery, err := nagApp.NewDeliveryConsumer(c.Notifier, c.Engine, nagApp.BreakerConfig{
		FailureThreshold: uint32(max(c.Config.BreakerFailures, 1)),
		Timeout:          c.Config.BreakerOpenFor,
	}, c.Metrics, c.Logger)
	if err != nil {
		return err
	}
	celebration, err := nagApp.NewCelebrationConsumer(c.Notifier, c.Engine, c.Logger)
	if err != nil {
		return err
	}
	c.TaskEvents = consumers.NewTaskEventConsumer(c.Engine, c.Logger)

	for _, consumer := range []eventbus.EventConsumer{delivery, celebration, c.TaskEvents} {
		c.registerConsumer(consumer)
	}
	return nil
}

func (c *Container) registerConsumer(consumer eventbus.EventConsumer) {
	if c.EventConsumer != nil {
		c.EventConsumer.RegisterConsumer(consumer)
		return
	}
	c.Bus.RegisterConsumer(consumer)
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.OutboxProcessor != nil && c.OutboxProcessor.IsRunning() {
		c.OutboxProcessor.Stop()
	}

	if c.EventConsumer != nil {
		if err := c.EventConsumer.Close(); err != nil {
			c.Logger.Warn("error closing event consumer", "error", err)
		}
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.phrasePlugin != nil {
		c.phrasePlugin.Close()
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBConn.Driver())
		}
	}
}

// Flush publishes whatever the outbox holds. One-shot commands call it so
// their events reach consumers before the process exits. With the processor
// disabled another process owns delivery and Flush does nothing.
func (c *Container) Flush(ctx context.Context) error {
	if !c.Config.OutboxProcessorEnabled {
		return nil
	}
	n, err := c.OutboxProcessor.Drain(ctx)
	if n > 0 {
		c.Logger.DebugContext(ctx, "outbox flushed", "published", n)
	}
	return err
}
