package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Remote   RemoteConfig
	Catalog  CatalogConfig
	Limits   LimitsConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN returns the connection URL for pgxpool.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// AMQPConfig configures booking event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// RemoteConfig points the booking and account orchestrators at the identity
// directory and the wallet ledger. Both default to this server.
type RemoteConfig struct {
	UserServiceURL   string
	WalletServiceURL string
	Timeout          time.Duration
}

type CatalogConfig struct {
	TheatresFile string
	ShowsFile    string
}

type LimitsConfig struct {
	BookingsPerMinute int
	IdempotencyTTL    time.Duration
	ShowLockTTL       time.Duration
	ShowLockWait      time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: stringEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresMaxConns, err := intEnv("POSTGRES_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(postgresMaxConns),
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     stringEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	amqpCfg := AMQPConfig{
		URL:      os.Getenv("AMQP_URL"),
		Exchange: stringEnv("AMQP_EXCHANGE", "tixsaga.bookings"),
	}

	self := fmt.Sprintf("http://%s:%d", serverCfg.Host, serverCfg.Port)

	remoteTimeout, err := durationEnv("REMOTE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	remoteCfg := RemoteConfig{
		UserServiceURL:   stringEnv("USER_SERVICE_URL", self),
		WalletServiceURL: stringEnv("WALLET_SERVICE_URL", self),
		Timeout:          remoteTimeout,
	}

	catalogCfg := CatalogConfig{
		TheatresFile: os.Getenv("CATALOG_THEATRES_FILE"),
		ShowsFile:    os.Getenv("CATALOG_SHOWS_FILE"),
	}

	bookingsPerMinute, err := intEnv("BOOKINGS_PER_MINUTE", 30)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idemTTL, err := durationEnv("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lockTTL, err := durationEnv("SHOW_LOCK_TTL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lockWait, err := durationEnv("SHOW_LOCK_WAIT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if lockTTL <= 2*remoteTimeout {
		return nil, fmt.Errorf("%s: SHOW_LOCK_TTL (%s) must exceed two remote calls (%s)", op, lockTTL, 2*remoteTimeout)
	}

	limitsCfg := LimitsConfig{
		BookingsPerMinute: bookingsPerMinute,
		IdempotencyTTL:    idemTTL,
		ShowLockTTL:       lockTTL,
		ShowLockWait:      lockWait,
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		AMQP:     amqpCfg,
		Remote:   remoteCfg,
		Catalog:  catalogCfg,
		Limits:   limitsCfg,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
