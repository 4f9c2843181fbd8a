package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// BotToken — токен чат-бота; без него serve поднимает только HTTP API.
	BotToken string
	// AdminSecret — код для команды /admin <code>, сравнивается как есть.
	AdminSecret string
	// AdminAPIToken — значение заголовка X-Admin-Token для операторского REST API.
	AdminAPIToken string

	NotifyTimeout time.Duration

	// SearchServiceURL — если задан, тикеты отправляются в search-service для индексации (POST /search/index/ticket).
	SearchServiceURL string

	Kafka struct {
		Brokers     []string
		TopicTicket string
	}
	NATS struct {
		URL           string
		SubjectPrefix string
	}
	RabbitMQ struct {
		URL      string
		Exchange string
	}

	DB struct {
		Driver   string
		Path     string
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	timeout, err := getDuration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BotToken:         firstEnv("BOT_TOKEN", "TELEGRAM_TOKEN", ""),
		AdminSecret:      getEnv("ADMIN_SECRET", ""),
		AdminAPIToken:    getEnv("ADMIN_API_TOKEN", ""),
		NotifyTimeout:    timeout,
		SearchServiceURL: getEnv("SEARCH_SERVICE_URL", ""),
	}
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.Kafka.TopicTicket = getEnv("KAFKA_TOPIC_TICKET", "citizen-desk.tickets")
	cfg.NATS.URL = getEnv("NATS_URL", "")
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", "citizen_desk.tickets")
	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", "")
	cfg.RabbitMQ.Exchange = getEnv("RABBITMQ_EXCHANGE", "citizen-desk")

	cfg.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", DriverSQLite))
	cfg.DB.Path = getEnv("DB_PATH", "citizen_desk.db")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "citizen_desk")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return errors.New("config: DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.AppEnv == "production" && c.AdminSecret == "" {
		return errors.New("config: in production ADMIN_SECRET is required")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("config: NOTIFY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getDuration accepts Go durations ("5s") and bare seconds ("5").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
