package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"

	"trust-service/internal/audit"
	"trust-service/internal/bucketing"
	"trust-service/internal/client"
	"trust-service/internal/config"
	"trust-service/internal/encryption"
	"trust-service/internal/gateway"
	"trust-service/internal/hashing"
	"trust-service/internal/metrics"
	"trust-service/internal/notifier"
	"trust-service/internal/repository"
	"trust-service/internal/repository/memory"
	rediscache "trust-service/internal/repository/redis"
	"trust-service/internal/repository/scylla"
	"trust-service/internal/service"
	"trust-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.Client
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	buckets   *bucketing.Manager
	metrics   *metrics.Metrics

	store    repository.Store
	audit    *audit.Recorder
	notifier notifier.Notifier
	gateway  gateway.Gateway

	verificationService *service.VerificationService
	walletService       *service.WalletService
	paymentService      *service.PaymentService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeManagers()
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("storage_backend", cfg.Storage.Backend),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
	)

	return f, nil
}

// initializeClients initializes external service clients with health checks.
// Kafka, ClickHouse and Elasticsearch are optional in every environment;
// Redis and Scylla are required in production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if rc, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else if err := rc.HealthCheck(ctx); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
	} else {
		f.redisClient = rc
		util.Info("Redis client initialized and healthy")
	}

	// Storage backend
	switch f.config.Storage.Backend {
	case "scylla":
		sc, err := scylla.NewClient(f.config)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else if err := sc.HealthCheck(); err != nil {
			sc.Close()
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			f.scyllaClient = sc
			util.Info("ScyllaDB client initialized and healthy")
		}
	default:
		util.Warn("Using in-memory storage backend - data is not persisted",
			util.String("backend", f.config.Storage.Backend))
	}

	// Kafka
	if len(f.config.Kafka.Brokers) == 0 {
		util.Warn("No Kafka brokers configured - proceeding without Kafka")
	} else if producer, err := client.NewKafkaProducer(f.config); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// ClickHouse
	if f.config.Clickhouse.URL == "" {
		util.Warn("No ClickHouse URL configured - audit events will not be archived")
	} else if ch, err := client.NewClickHouseClient(f.config); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without ClickHouse", util.ErrorField(err))
	} else {
		f.clickhouseClient = ch
		util.Info("ClickHouse client initialized and healthy")
	}

	// Elasticsearch
	if f.config.Elasticsearch.URL == "" {
		util.Warn("No Elasticsearch URL configured - audit events will not be indexed")
	} else if es, err := client.NewElasticsearchClient(f.config); err != nil {
		util.Warn("Elasticsearch initialization failed - proceeding without Elasticsearch", util.ErrorField(err))
	} else {
		f.esClient = es
		util.Info("Elasticsearch client initialized and healthy")
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

// initializeManagers initializes hashing, encryption, bucketing and metrics.
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher()
	f.buckets = bucketing.NewManager(0, 0)
	f.metrics = metrics.Registry("trust")

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("AWS config load failed - falling back to local encryption", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
			util.Info("KMS client initialized", util.String("region", f.config.KMS.Region))
		}
	}
	f.encryptor = encryption.NewManager(f.config, kmsClient)
}

// initializeServices wires the repositories, caches and sinks into services.
func (f *Factory) initializeServices() {
	if f.scyllaClient != nil {
		f.store = scylla.NewStore(f.scyllaClient)
	} else {
		f.store = memory.NewStore()
	}

	f.audit = audit.NewRecorder(
		f.kafkaProducer,
		f.clickhouseClient,
		f.esClient,
		f.buckets,
		f.config.Kafka.AuditTopic,
		f.config.Elasticsearch.AuditIndex,
	)

	if f.kafkaProducer != nil {
		f.notifier = notifier.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.SMSTopic)
	} else {
		f.notifier = notifier.LogNotifier{}
		util.Warn("Using log notifier - verification codes are written to the log")
	}

	f.gateway = gateway.NewHTTPGateway(f.config)

	var cooldowns *rediscache.CooldownCache
	var dedup *rediscache.DedupCache
	if f.redisClient != nil {
		cooldowns = rediscache.NewCooldownCache(f.redisClient)
		dedup = rediscache.NewDedupCache(f.redisClient)
	}

	f.verificationService = service.NewVerificationService(
		f.store,
		f.hasher,
		f.encryptor,
		f.notifier,
		cooldowns,
		f.metrics,
		f.audit,
		f.config.Verification,
	)

	f.walletService = service.NewWalletService(
		f.store,
		f.buckets,
		f.metrics,
		f.audit,
		f.config.Wallet,
	)

	f.paymentService = service.NewPaymentService(
		f.store,
		f.walletService,
		f.gateway,
		dedup,
		f.metrics,
		f.audit,
		f.config.Payment,
	)
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) Store() repository.Store { return f.store }

func (f *Factory) VerificationService() *service.VerificationService { return f.verificationService }

func (f *Factory) WalletService() *service.WalletService { return f.walletService }

func (f *Factory) PaymentService() *service.PaymentService { return f.paymentService }

// HealthCheck probes every initialized client concurrently and returns a
// per-component error map. Absent optional clients are not reported.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := f.store.HealthCheck(ctx); err != nil {
			record("storage", err)
		}
		return nil
	})
	if f.redisClient != nil {
		g.Go(func() error {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				record("redis", err)
			}
			return nil
		})
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				record("clickhouse", err)
			}
			return nil
		})
	}
	if f.esClient != nil {
		g.Go(func() error {
			if err := f.esClient.HealthCheck(); err != nil {
				record("elasticsearch", err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

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

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown complete")
	})
	return nil
}
