package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	NATS struct {
		URL                 string             `mapstructure:"url"`
		Leads               ConsumerNatsConfig `mapstructure:"leads"`
		NotificationStream  string             `mapstructure:"notificationStream"`
		NotificationSubject string             `mapstructure:"notificationSubject"` // base subject, organization ID is appended
		DLQStream           string             `mapstructure:"dlqStream"`
		DLQSubject          string             `mapstructure:"dlqSubject"` // base subject, organization ID is appended
		DLQWorker           DLQWorkerConfig    `mapstructure:"dlqWorker"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string        `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate"`
		Schema              string        `mapstructure:"schema"` // empty keeps tables in the search_path schema
		MaxOpenConns        int           `mapstructure:"maxOpenConns"`
		MaxIdleConns        int           `mapstructure:"maxIdleConns"`
		ConnMaxLifetime     time.Duration `mapstructure:"connMaxLifetime"`
		LookupRetryMaxTime  time.Duration `mapstructure:"lookupRetryMaxTime"` // read retries only, writes are never retried
	} `mapstructure:"database"`
	Cache struct {
		Enabled             bool          `mapstructure:"enabled"`
		RedisURL            string        `mapstructure:"redisURL"`
		OrganizationTTL     time.Duration `mapstructure:"organizationTTL"`
		KeyPrefix           string        `mapstructure:"keyPrefix"`
		InvalidationSubject string        `mapstructure:"invalidationSubject"` // core NATS subject, last token is the organization id
	} `mapstructure:"cache"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	Notifications struct {
		Enabled       bool   `mapstructure:"enabled"`
		DefaultRegion string `mapstructure:"defaultRegion"` // region used to parse phones without a country code
	} `mapstructure:"notifications"`
	WorkerPools struct {
		SideEffects WorkerPoolConfig `mapstructure:"sideEffects"`
	} `mapstructure:"workerPools"`
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize    int           `mapstructure:"poolSize"`    // Max tasks in flight; submits beyond it are dropped
	ExpiryTime  time.Duration `mapstructure:"expiryTime"`  // Idle worker expiry time
	TaskTimeout time.Duration `mapstructure:"taskTimeout"` // Deadline applied to each side effect
}

// DLQWorkerConfig holds configuration for the dead letter worker
type DLQWorkerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Workers        int           `mapstructure:"workers"`        // ants pool size
	MaxAgeDays     int           `mapstructure:"maxAgeDays"`     // DLQ stream retention
	MaxDeliver     int           `mapstructure:"maxDeliver"`     // deliveries of a DLQ message before JetStream stops redelivering
	AckWait        time.Duration `mapstructure:"ackWait"`
	MaxAckPending  int           `mapstructure:"maxAckPending"`
	ReplayAttempts int           `mapstructure:"replayAttempts"` // replays of a retryable message before it is archived
	BaseDelay      time.Duration `mapstructure:"baseDelay"`
	MaxDelay       time.Duration `mapstructure:"maxDelay"`
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in day
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`  // base subjects, organization ID is the last token
	Organization string        `mapstructure:"organization"` // optional, narrows the consumer to one organization
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before DLQ
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from .env, an optional default.yaml and environment variables.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.leads.stream", "leads_stream")
	v.SetDefault("nats.leads.consumer", "lead_engine")
	v.SetDefault("nats.leads.group", "lead_engine")
	v.SetDefault("nats.leads.maxAge", 7)
	v.SetDefault("nats.leads.subjectList", []string{"v1.leads.submissions", "v1.leads.status"})
	v.SetDefault("nats.leads.maxDeliver", 5)
	v.SetDefault("nats.leads.nakBaseDelay", time.Second)
	v.SetDefault("nats.leads.nakMaxDelay", 2*time.Minute)
	v.SetDefault("nats.notificationStream", "lead_notifications_stream")
	v.SetDefault("nats.notificationSubject", "v1.leads.notifications")
	v.SetDefault("nats.dlqStream", "dlq_stream")
	v.SetDefault("nats.dlqSubject", "v1.dlq.leads")
	v.SetDefault("nats.dlqWorker.enabled", true)
	v.SetDefault("nats.dlqWorker.workers", 4)
	v.SetDefault("nats.dlqWorker.maxAgeDays", 30)
	v.SetDefault("nats.dlqWorker.maxDeliver", 10)
	v.SetDefault("nats.dlqWorker.ackWait", time.Minute)
	v.SetDefault("nats.dlqWorker.maxAckPending", 100)
	v.SetDefault("nats.dlqWorker.replayAttempts", 3)
	v.SetDefault("nats.dlqWorker.baseDelay", time.Minute)
	v.SetDefault("nats.dlqWorker.maxDelay", 30*time.Minute)

	v.SetDefault("database.postgresAutoMigrate", false)
	v.SetDefault("database.schema", "")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("database.lookupRetryMaxTime", 3*time.Second)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redisURL", "redis://localhost:6379/0")
	v.SetDefault("cache.organizationTTL", time.Minute)
	v.SetDefault("cache.invalidationSubject", "v1.organizations.changed.>")
	v.SetDefault("cache.keyPrefix", "lead-engine")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.defaultRegion", "US")

	v.SetDefault("workerPools.sideEffects.poolSize", 512)
	v.SetDefault("workerPools.sideEffects.expiryTime", time.Minute)
	v.SetDefault("workerPools.sideEffects.taskTimeout", 10*time.Second)

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.lead-engine")
	v.AddConfigPath("/etc/lead-engine")

	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		v.Set("cache.redisURL", url)
		v.Set("cache.enabled", true)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgresDSN (POSTGRES_DSN) is required")
	}
	if c.WorkerPools.SideEffects.PoolSize <= 0 {
		return fmt.Errorf("workerPools.sideEffects.poolSize must be positive, got %d", c.WorkerPools.SideEffects.PoolSize)
	}
	if c.NATS.DLQWorker.Enabled && c.NATS.DLQWorker.Workers <= 0 {
		return fmt.Errorf("nats.dlqWorker.workers must be positive, got %d", c.NATS.DLQWorker.Workers)
	}
	if c.NATS.Leads.MaxDeliver <= 0 {
		return fmt.Errorf("nats.leads.maxDeliver must be positive, got %d", c.NATS.Leads.MaxDeliver)
	}
	return nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
