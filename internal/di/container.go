package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/handler"
	"github.com/prohmpiriya/turf-booking/internal/repository"
	"github.com/prohmpiriya/turf-booking/internal/service"
	"github.com/prohmpiriya/turf-booking/internal/worker"
	"github.com/prohmpiriya/turf-booking/pkg/config"
	"github.com/prohmpiriya/turf-booking/pkg/database"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/redis"
	"go.uber.org/zap"
)

// Container holds all dependencies for the booking engine
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// Infrastructure, nil when disabled
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	VenueRepo   repository.VenueRepository
	SlotRepo    repository.SlotRepository
	BookingRepo repository.BookingRepository
	SlotCache   repository.SlotCache

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	SlotService         service.SlotService
	BookingService      service.BookingService
	SplitPaymentService service.SplitPaymentService
	CheckInService      service.CheckInService
	TicketService       service.TicketService

	// Handlers
	HealthHandler  *handler.HealthHandler
	SlotHandler    *handler.SlotHandler
	BookingHandler *handler.BookingHandler
	OwnerHandler   *handler.OwnerHandler

	// Sweeper drives hold expiry
	Sweeper *worker.ExpiryWorker
}

// NewContainer connects the configured backends and wires every component
func NewContainer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if log == nil {
		log = logger.Get()
	}
	c := &Container{Config: cfg, Logger: log}

	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initCache(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initPublisher(ctx)

	c.SlotService = service.NewSlotService(c.VenueRepo, c.SlotRepo, c.SlotCache, &service.SlotServiceConfig{
		CacheTTL: cfg.Booking.SlotCacheTTL,
		Logger:   log,
	})
	c.BookingService = service.NewBookingService(c.VenueRepo, c.SlotRepo, c.BookingRepo, c.SlotCache, c.EventPublisher, &service.BookingServiceConfig{
		HoldTTL:         cfg.Booking.HoldTTL,
		DefaultCurrency: cfg.Booking.Currency,
		Logger:          log,
	})
	c.SplitPaymentService = service.NewSplitPaymentService(c.BookingRepo, c.SlotCache, c.EventPublisher, &service.SplitPaymentServiceConfig{
		Logger: log,
	})
	c.CheckInService = service.NewCheckInService(c.VenueRepo, c.BookingRepo, c.EventPublisher, &service.CheckInServiceConfig{
		Logger: log,
	})
	c.TicketService = service.NewTicketService(c.VenueRepo, c.SlotRepo, c.BookingRepo)

	c.HealthHandler = handler.NewHealthHandler(c.healthChecks())
	c.SlotHandler = handler.NewSlotHandler(c.SlotService)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, c.SplitPaymentService, c.TicketService)
	c.OwnerHandler = handler.NewOwnerHandler(c.BookingService, c.CheckInService)

	c.Sweeper = worker.NewExpiryWorker(c.BookingService, &worker.ExpiryWorkerConfig{
		ScanInterval: cfg.Sweeper.Interval,
		BatchSize:    cfg.Sweeper.BatchSize,
	}, log.With(zap.String("component", "expiry-sweeper")))

	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	if c.Config.Storage.Driver == "memory" {
		c.Logger.Warn("using in-memory storage, data is lost on restart")
		store := repository.NewMemoryStore()
		c.VenueRepo = store.Venues()
		c.SlotRepo = store.Slots()
		c.BookingRepo = store.Bookings()
		return nil
	}

	if err := c.Config.ValidateDatabase(); err != nil {
		return err
	}

	dbCfg := c.Config.Database
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            dbCfg.Host,
		Port:            dbCfg.Port,
		User:            dbCfg.User,
		Password:        dbCfg.Password,
		Database:        dbCfg.DBName,
		SSLMode:         dbCfg.SSLMode,
		MaxConns:        int32(dbCfg.MaxConns),
		MinConns:        int32(dbCfg.MinConns),
		MaxConnLifetime: dbCfg.ConnMaxLifetime,
		MaxConnIdleTime: dbCfg.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      5,
		RetryInterval:   2 * time.Second,
		EnableTracing:   c.Config.OTel.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db
	c.Logger.Info("connected to PostgreSQL", zap.String("host", dbCfg.Host), zap.String("database", dbCfg.DBName))

	if dbCfg.AutoMigrate {
		if err := db.ApplySchema(ctx, repository.Schema); err != nil {
			return err
		}
		c.Logger.Info("database schema applied")
	}

	c.VenueRepo = repository.NewPostgresVenueRepository(db.Pool())
	c.SlotRepo = repository.NewPostgresSlotRepository(db.Pool())
	c.BookingRepo = repository.NewPostgresBookingRepository(db.Pool())
	return nil
}

func (c *Container) initCache(ctx context.Context) error {
	if !c.Config.Redis.Enabled {
		c.SlotCache = repository.NoopSlotCache{}
		return nil
	}

	rc := c.Config.Redis
	client, err := redis.NewClient(ctx, &redis.Config{
		Host:          rc.Host,
		Port:          rc.Port,
		Password:      rc.Password,
		DB:            rc.DB,
		PoolSize:      rc.PoolSize,
		MinIdleConns:  rc.MinIdleConns,
		DialTimeout:   rc.DialTimeout,
		ReadTimeout:   rc.ReadTimeout,
		WriteTimeout:  rc.WriteTimeout,
		PoolTimeout:   4 * time.Second,
		MaxRetries:    5,
		RetryInterval: time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Redis = client
	c.SlotCache = repository.NewRedisSlotCache(client.Client())
	c.Logger.Info("connected to Redis", zap.String("addr", rc.Addr()))
	return nil
}

// initPublisher falls back to a no-op publisher when Kafka is unreachable;
// events are advisory and must not block bookings.
func (c *Container) initPublisher(ctx context.Context) {
	kc := c.Config.Kafka
	if !kc.Enabled || len(kc.Brokers) == 0 {
		c.EventPublisher = service.NewNoOpEventPublisher()
		return
	}

	publisher, err := service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     kc.Brokers,
		Topic:       kc.BookingEventsTopic,
		ServiceName: c.Config.App.Name,
		ClientID:    kc.ClientID + "-producer",
	})
	if err != nil {
		c.Logger.Warn("kafka unavailable, booking events disabled", zap.Error(err))
		c.EventPublisher = service.NewNoOpEventPublisher()
		return
	}
	c.EventPublisher = publisher
	c.Logger.Info("connected to Kafka", zap.Strings("brokers", kc.Brokers), zap.String("topic", kc.BookingEventsTopic))
}

func (c *Container) healthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": nil,
		"redis":    nil,
	}
	if c.DB != nil {
		checks["database"] = c.DB.HealthCheck
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.HealthCheck
	}
	return checks
}

// Close releases every connection the container opened
func (c *Container) Close() {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
