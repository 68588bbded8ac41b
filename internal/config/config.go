package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"trust-service/internal/util"
)

// Config holds every tunable of the service. Values come from the
// environment, optionally seeded from a .env file in development.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Verification  VerificationConfig
	Wallet        WalletConfig
	Payment       PaymentConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	// Backend selects the persistence implementation: "scylla" or "memory".
	Backend string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers    []string
	SMSTopic   string
	AuditTopic string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

// VerificationConfig carries the phone verification policy knobs.
type VerificationConfig struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	BlockDuration  time.Duration
}

type WalletConfig struct {
	// MinWithdrawal is denominated in the smallest currency unit.
	MinWithdrawal int64
}

type PaymentConfig struct {
	GatewayURL     string
	GatewayToken   string
	CallbackURL    string
	DedupWindow    time.Duration
	GatewayTimeout time.Duration
}

// LoadConfig assembles the configuration from the environment. A missing
// .env file is not an error; container deployments set real env vars.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Backend: util.GetEnv("STORAGE_BACKEND", "memory"),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "trust"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:    util.GetEnvList("KAFKA_BROKERS", nil),
			SMSTopic:   util.GetEnv("KAFKA_SMS_TOPIC", "sms-dispatch"),
			AuditTopic: util.GetEnv("KAFKA_AUDIT_TOPIC", "trust-audit"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", ""),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "trust_audit"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        util.GetEnv("ELASTICSEARCH_URL", ""),
			Username:   util.GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: util.GetEnv("ELASTICSEARCH_AUDIT_INDEX", "trust-audit"),
		},
		KMS: KMSConfig{
			Enabled: util.GetEnvBool("KMS_ENABLED", false),
			KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			Region:  util.GetEnv("AWS_REGION", "eu-central-1"),
		},
		Verification: VerificationConfig{
			CodeTTL:        util.GetEnvDuration("VERIFICATION_CODE_TTL", 5*time.Minute),
			ResendCooldown: util.GetEnvDuration("VERIFICATION_RESEND_COOLDOWN", 60*time.Second),
			MaxAttempts:    util.GetEnvInt("VERIFICATION_MAX_ATTEMPTS", 5),
			BlockDuration:  util.GetEnvDuration("VERIFICATION_BLOCK_DURATION", 30*time.Minute),
		},
		Wallet: WalletConfig{
			MinWithdrawal: util.GetEnvInt64("WALLET_MIN_WITHDRAWAL", 10000),
		},
		Payment: PaymentConfig{
			GatewayURL:     util.GetEnv("PAYMENT_GATEWAY_URL", ""),
			GatewayToken:   util.GetEnv("PAYMENT_GATEWAY_TOKEN", ""),
			CallbackURL:    util.GetEnv("PAYMENT_CALLBACK_URL", "http://localhost:8080/api/v1/payment/callback"),
			DedupWindow:    util.GetEnvDuration("PAYMENT_DEDUP_WINDOW", 15*time.Minute),
			GatewayTimeout: util.GetEnvDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
