package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Paystack      PaystackConfig
	Courier       CourierConfig
	Mailer        MailerConfig
	Sweeper       SweeperConfig
	Commission    CommissionConfig
	Notifications NotificationsConfig
	Outbox        OutboxConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BOOKHAVEN_APP_ENV" required:"true"`
	Port         string `envconfig:"BOOKHAVEN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BOOKHAVEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOOKHAVEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BOOKHAVEN_DB_DSN"`
	Driver string `envconfig:"BOOKHAVEN_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BOOKHAVEN_DB_HOST"`
	Port     int    `envconfig:"BOOKHAVEN_DB_PORT" default:"5432"`
	User     string `envconfig:"BOOKHAVEN_DB_USER"`
	Password string `envconfig:"BOOKHAVEN_DB_PASSWORD"`
	Name     string `envconfig:"BOOKHAVEN_DB_NAME"`
	SSLMode  string `envconfig:"BOOKHAVEN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOOKHAVEN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOOKHAVEN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOOKHAVEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOOKHAVEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOOKHAVEN_REDIS_URL"`
	Address      string        `envconfig:"BOOKHAVEN_REDIS_ADDR"`
	Password     string        `envconfig:"BOOKHAVEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOOKHAVEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOOKHAVEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOOKHAVEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOOKHAVEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOOKHAVEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOOKHAVEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaystackConfig carries the payment provider credentials and behavior knobs.
type PaystackConfig struct {
	SecretKey      string        `envconfig:"BOOKHAVEN_PAYSTACK_SECRET_KEY"`
	WebhookSecret  string        `envconfig:"BOOKHAVEN_PAYSTACK_WEBHOOK_SECRET"`
	BaseURL        string        `envconfig:"BOOKHAVEN_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL    string        `envconfig:"BOOKHAVEN_PAYSTACK_CALLBACK_URL"`
	RequestTimeout time.Duration `envconfig:"BOOKHAVEN_PAYSTACK_TIMEOUT" default:"15s"`
	Simulated      bool          `envconfig:"BOOKHAVEN_PAYSTACK_SIMULATED" default:"false"`
	MaxRetries     int           `envconfig:"BOOKHAVEN_PAYSTACK_MAX_RETRIES" default:"3"`
}

// CourierConfig carries the delivery provider credentials and behavior knobs.
type CourierConfig struct {
	APIKey         string        `envconfig:"BOOKHAVEN_COURIER_API_KEY"`
	BaseURL        string        `envconfig:"BOOKHAVEN_COURIER_BASE_URL"`
	RequestTimeout time.Duration `envconfig:"BOOKHAVEN_COURIER_TIMEOUT" default:"15s"`
	Simulated      bool          `envconfig:"BOOKHAVEN_COURIER_SIMULATED" default:"false"`
	MaxRetries     int           `envconfig:"BOOKHAVEN_COURIER_MAX_RETRIES" default:"3"`
}

// MailerConfig configures the outbound notification gateway.
type MailerConfig struct {
	APIKey         string        `envconfig:"BOOKHAVEN_MAILER_API_KEY"`
	BaseURL        string        `envconfig:"BOOKHAVEN_MAILER_BASE_URL" default:"https://api.sendgrid.com"`
	FromAddress    string        `envconfig:"BOOKHAVEN_MAILER_FROM" default:"orders@bookhaven.example"`
	RequestTimeout time.Duration `envconfig:"BOOKHAVEN_MAILER_TIMEOUT" default:"10s"`
	Simulated      bool          `envconfig:"BOOKHAVEN_MAILER_SIMULATED" default:"false"`
}

// SweeperConfig controls the scheduled order-expiry worker.
type SweeperConfig struct {
	Interval     time.Duration `envconfig:"BOOKHAVEN_SWEEPER_INTERVAL" default:"5m"`
	LockTTL      time.Duration `envconfig:"BOOKHAVEN_SWEEPER_LOCK_TTL" default:"10m"`
	CommitWindow time.Duration `envconfig:"BOOKHAVEN_COMMIT_WINDOW" default:"48h"`
	BatchLimit   int           `envconfig:"BOOKHAVEN_SWEEPER_BATCH_LIMIT" default:"200"`
}

// CommissionConfig selects the active settlement policy version.
type CommissionConfig struct {
	PolicyVersion string `envconfig:"BOOKHAVEN_COMMISSION_POLICY" default:"v1"`
}

// NotificationsConfig controls the outbound notification dispatcher.
type NotificationsConfig struct {
	RateLimitWindow time.Duration `envconfig:"BOOKHAVEN_NOTIFY_RATE_WINDOW" default:"1m"`
	RateLimitPerKey int           `envconfig:"BOOKHAVEN_NOTIFY_RATE_LIMIT" default:"10"`
	DedupTTL        time.Duration `envconfig:"BOOKHAVEN_NOTIFY_DEDUP_TTL" default:"72h"`
	OpsEmail        string        `envconfig:"BOOKHAVEN_NOTIFY_OPS_EMAIL" default:"ops@bookhaven.example"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BOOKHAVEN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BOOKHAVEN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BOOKHAVEN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BOOKHAVEN_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BOOKHAVEN_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"BOOKHAVEN_PUBSUB_ORDERS_TOPIC" default:"bh-order-events"`
	OrdersSubscription string `envconfig:"BOOKHAVEN_PUBSUB_ORDERS_SUBSCRIPTION" default:"bh-order-events-notifications"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BOOKHAVEN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BOOKHAVEN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for name, value := range map[string]string{
		"BOOKHAVEN_DB_HOST": db.Host,
		"BOOKHAVEN_DB_USER": db.User,
		"BOOKHAVEN_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either BOOKHAVEN_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
