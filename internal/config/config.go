package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBConfig struct {
		DBHost     string
		DBPort     string
		DBUser     string
		DBPassword string
		DBName     string
		DBSSLMode  string
	}

	KafkaURL           string
	KafkaConsumerGroup string
	KafkaCheckoutTopic string
	KafkaPaymentTopic  string
	KafkaRefundTopic   string
	KafkaMailTopic     string

	JobMaxAttempts int
	JobBackoff     time.Duration
	JobTimeout     time.Duration

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	HTTPPort            int
	StripeWebhookSecret string
	CORSAllowedOrigins  []string
	MigrationsPath      string
	LogLevel            string
}

var defaults = map[string]any{
	"ORDERS_DB_HOST":        "localhost",
	"ORDERS_DB_PORT":        "5432",
	"ORDERS_DB_USER":        "postgres",
	"ORDERS_DB_PASSWORD":    "postgres",
	"ORDERS_DB_NAME":        "orders_db",
	"ORDERS_DB_SSLMODE":     "disable",
	"KAFKA_BROKER_URL":      "localhost:9092",
	"KAFKA_CONSUMER_GROUP":  "order-service-group",
	"KAFKA_CHECKOUT_TOPIC":  "stripe_checkout_events",
	"KAFKA_PAYMENT_TOPIC":   "stripe_payment_events",
	"KAFKA_REFUND_TOPIC":    "stripe_refund_events",
	"KAFKA_MAIL_TOPIC":      "mail_jobs",
	"JOB_MAX_ATTEMPTS":      5,
	"JOB_BACKOFF":           "1s",
	"JOB_TIMEOUT":           "30s",
	"OUTBOX_POLL_INTERVAL":  "5s",
	"OUTBOX_POLL_TIMEOUT":   "10s",
	"OUTBOX_BATCH_SIZE":     50,
	"OUTBOX_MAX_ATTEMPTS":   10,
	"HTTP_PORT":             8081,
	"STRIPE_WEBHOOK_SECRET": "",
	"CORS_ALLOWED_ORIGINS":  "*",
	"MIGRATIONS_PATH":       "file:///app/migrations",
	"LOG_LEVEL":             "info",
}

// LoadConfig reads the environment, optionally layered over the YAML file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	cfg.DBConfig.DBHost = v.GetString("ORDERS_DB_HOST")
	cfg.DBConfig.DBPort = v.GetString("ORDERS_DB_PORT")
	cfg.DBConfig.DBUser = v.GetString("ORDERS_DB_USER")
	cfg.DBConfig.DBPassword = v.GetString("ORDERS_DB_PASSWORD")
	cfg.DBConfig.DBName = v.GetString("ORDERS_DB_NAME")
	cfg.DBConfig.DBSSLMode = v.GetString("ORDERS_DB_SSLMODE")

	cfg.KafkaURL = v.GetString("KAFKA_BROKER_URL")
	cfg.KafkaConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.KafkaCheckoutTopic = v.GetString("KAFKA_CHECKOUT_TOPIC")
	cfg.KafkaPaymentTopic = v.GetString("KAFKA_PAYMENT_TOPIC")
	cfg.KafkaRefundTopic = v.GetString("KAFKA_REFUND_TOPIC")
	cfg.KafkaMailTopic = v.GetString("KAFKA_MAIL_TOPIC")

	cfg.JobMaxAttempts = v.GetInt("JOB_MAX_ATTEMPTS")
	cfg.OutboxBatchSize = v.GetInt("OUTBOX_BATCH_SIZE")
	cfg.OutboxMaxAttempts = v.GetInt("OUTBOX_MAX_ATTEMPTS")
	cfg.HTTPPort = v.GetInt("HTTP_PORT")

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"JOB_BACKOFF", &cfg.JobBackoff},
		{"JOB_TIMEOUT", &cfg.JobTimeout},
		{"OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval},
		{"OUTBOX_POLL_TIMEOUT", &cfg.OutboxPollTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	cfg.StripeWebhookSecret = v.GetString("STRIPE_WEBHOOK_SECRET")
	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))
	cfg.MigrationsPath = v.GetString("MIGRATIONS_PATH")
	cfg.LogLevel = v.GetString("LOG_LEVEL")

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.GetKafkaBrokers()) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKER_URL is required"))
	}
	for key, topic := range map[string]string{
		"KAFKA_CHECKOUT_TOPIC": c.KafkaCheckoutTopic,
		"KAFKA_PAYMENT_TOPIC":  c.KafkaPaymentTopic,
		"KAFKA_REFUND_TOPIC":   c.KafkaRefundTopic,
		"KAFKA_MAIL_TOPIC":     c.KafkaMailTopic,
	} {
		if topic == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.JobMaxAttempts <= 0 {
		errs = append(errs, errors.New("JOB_MAX_ATTEMPTS must be positive"))
	}
	if c.JobBackoff <= 0 {
		errs = append(errs, errors.New("JOB_BACKOFF must be positive"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("%s:%s@%s:%s/%s?sslmode=%s",
		c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaURL)
}

// FamilyTopics maps each webhook job family to its topic.
func (c *Config) FamilyTopics() map[string]string {
	return map[string]string{
		"checkout": c.KafkaCheckoutTopic,
		"payment":  c.KafkaPaymentTopic,
		"refund":   c.KafkaRefundTopic,
	}
}
