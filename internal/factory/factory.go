package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"repairdesk/internal/audit"
	"repairdesk/internal/client"
	"repairdesk/internal/config"
	"repairdesk/internal/handler"
	"repairdesk/internal/hashing"
	"repairdesk/internal/realtime"
	ch "repairdesk/internal/repository/clickhouse"
	"repairdesk/internal/repository/es"
	"repairdesk/internal/repository/postgres"
	"repairdesk/internal/repository/redis"
	"repairdesk/internal/service"
	"repairdesk/internal/token"
	"repairdesk/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	postgresClient   *client.PostgresClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher       *hashing.Hasher
	tokenManager *token.Manager

	// Repositories
	accountRepository postgres.AccountRepository
	attemptRepository postgres.LoginAttemptRepository
	customerRepo      postgres.CustomerRepository
	deviceTypeRepo    postgres.DeviceTypeRepository
	rateLimitCache    *redis.RateLimitCache
	customerIndex     *es.CustomerIndex
	auditStore        *ch.AuditStore

	// Realtime
	registry *realtime.Registry
	hub      *realtime.Hub

	// Audit
	auditPublisher audit.Publisher

	// Services
	loginService    *service.LoginService
	employeeService *service.EmployeeService
	customerService *service.CustomerService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.hasher = hashing.NewHasher(cfg)
	factory.tokenManager = token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	factory.registry = realtime.NewRegistry()
	factory.hub = realtime.NewHub(factory.registry, util.Get())

	// the hub dispatches approval frames into the login coordinator
	factory.hub.SetCoordinator(factory.LoginService())

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment))

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Postgres is hard-required; in development the others degrade to
// warnings so a laptop run only needs a database.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Postgres
	pg, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = pg
	if err := f.postgresClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	util.Info("Postgres client initialized and healthy")

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		util.Info("Redis client initialized and healthy")
	}

	// Kafka: losing the broker must never block logins, so this one only warns
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without audit stream",
			util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			f.esClient = nil
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		util.Info("ClickHouse client initialized and healthy")
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Repositories
// ==============================

func (f *Factory) AccountRepository() postgres.AccountRepository {
	if f.accountRepository == nil {
		f.accountRepository = postgres.NewAccountRepository(f.postgresClient, util.Get())
	}
	return f.accountRepository
}

func (f *Factory) LoginAttemptRepository() postgres.LoginAttemptRepository {
	if f.attemptRepository == nil {
		f.attemptRepository = postgres.NewLoginAttemptRepository(f.postgresClient, util.Get())
	}
	return f.attemptRepository
}

func (f *Factory) CustomerRepository() postgres.CustomerRepository {
	if f.customerRepo == nil {
		f.customerRepo = postgres.NewCustomerRepository(f.postgresClient, util.Get())
	}
	return f.customerRepo
}

func (f *Factory) DeviceTypeRepository() postgres.DeviceTypeRepository {
	if f.deviceTypeRepo == nil {
		f.deviceTypeRepo = postgres.NewDeviceTypeRepository(f.postgresClient, util.Get())
	}
	return f.deviceTypeRepo
}

func (f *Factory) RateLimitCache() *redis.RateLimitCache {
	if f.rateLimitCache == nil && f.redisClient != nil {
		f.rateLimitCache = redis.NewRateLimitCache(f.redisClient)
	}
	return f.rateLimitCache
}

func (f *Factory) CustomerIndex() *es.CustomerIndex {
	if f.customerIndex == nil && f.esClient != nil {
		f.customerIndex = es.NewCustomerIndex(f.esClient, util.Get())
	}
	return f.customerIndex
}

func (f *Factory) AuditStore() *ch.AuditStore {
	if f.auditStore == nil && f.clickhouseClient != nil {
		f.auditStore = ch.NewAuditStore(f.clickhouseClient, util.Get())
	}
	return f.auditStore
}

// ==============================
// Audit
// ==============================

func (f *Factory) AuditPublisher() audit.Publisher {
	if f.auditPublisher == nil {
		if f.kafkaProducer != nil {
			f.auditPublisher = audit.NewKafkaPublisher(f.kafkaProducer, util.Get())
		} else {
			f.auditPublisher = audit.NewNopPublisher()
		}
	}
	return f.auditPublisher
}

// ==============================
// Services
// ==============================

func (f *Factory) LoginService() *service.LoginService {
	if f.loginService == nil {
		f.loginService = service.NewLoginService(
			f.AccountRepository(),
			f.LoginAttemptRepository(),
			f.registry,
			f.hub,
			f.tokenManager,
			f.hasher,
			f.AuditPublisher(),
			f.config.Auth.PendingTTL,
			f.config.Auth.SweepInterval,
			util.Get(),
		)
	}
	return f.loginService
}

func (f *Factory) EmployeeService() *service.EmployeeService {
	if f.employeeService == nil {
		f.employeeService = service.NewEmployeeService(
			f.AccountRepository(),
			f.hasher,
			util.Get(),
		)
	}
	return f.employeeService
}

func (f *Factory) CustomerService() *service.CustomerService {
	if f.customerService == nil {
		f.customerService = service.NewCustomerService(
			f.CustomerRepository(),
			f.DeviceTypeRepository(),
			f.CustomerIndex(),
			util.Get(),
		)
	}
	return f.customerService
}

// ==============================
// HTTP
// ==============================

// Router assembles the handlers and the chi router.
func (f *Factory) Router() chi.Router {
	return handler.NewRouter(handler.RouterDeps{
		Auth: handler.NewAuthHandler(
			f.LoginService(), f.RateLimitCache(), f.config.RateLimit, util.Get()),
		Employees: handler.NewEmployeeHandler(
			f.EmployeeService(), f.config.Uploads.Dir, util.Get()),
		Customers: handler.NewCustomerHandler(f.CustomerService(), util.Get()),
		Reports:   handler.NewReportHandler(f.AuditStore(), util.Get()),
		WS:        handler.NewWSHandler(f.hub, util.Get()),

		Tokens:     f.tokenManager,
		Hub:        f.hub,
		UploadsDir: f.config.Uploads.Dir,
		Logger:     util.Get(),
	})
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.postgresClient != nil {
		if err := f.postgresClient.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// ==============================
// Lifecycle
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.postgresClient != nil {
			if err := f.postgresClient.Close(); err != nil {
				util.Error("Failed to close Postgres client", util.ErrorField(err))
			} else {
				util.Info("Postgres client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Hub() *realtime.Hub {
	return f.hub
}
