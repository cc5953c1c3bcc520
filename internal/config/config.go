package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"pawedaran"`
	Password string `env:"PASSWORD" envDefault:"pawedaran"`
	DBName   string `env:"DB" envDefault:"pawedaran"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// URL renders the connection in the postgres:// form expected by the migrator.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addr        string        `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	MaxRetries  int           `env:"MAX_RETRIES" envDefault:"5"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Prefix      string        `env:"PREFIX" envDefault:"pawedaran_"`
}

type S3Config struct {
	Endpoint        string        `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string        `env:"ACCESS_KEY" envDefault:"minio"`
	SecretAccessKey string        `env:"SECRET_KEY" envDefault:"minio123"`
	Bucket          string        `env:"BUCKET" envDefault:"pawedaran"`
	Region          string        `env:"REGION" envDefault:"us-east-1"`
	UseSSL          bool          `env:"USE_SSL" envDefault:"false"`
	Prefix          string        `env:"PREFIX"`
	URLTTL          time.Duration `env:"URL_TTL" envDefault:"1h"`
}

type StorageConfig struct {
	Driver       string `env:"DRIVER" envDefault:"local"`
	Dir          string `env:"DIR" envDefault:"./storage"`
	PublicPrefix string `env:"PUBLIC_PREFIX" envDefault:"/files"`
	ExternalURL  string `env:"EXTERNAL_URL"`
}

type KafkaConfig struct {
	Enabled           bool          `env:"ENABLED" envDefault:"false"`
	Brokers           []string      `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	ClientID          string        `env:"CLIENT_ID" envDefault:"pawedaran"`
	Topic             string        `env:"TOPIC" envDefault:"pawedaran.debt.payments"`
	Partitions        int           `env:"TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"REPLICATION_FACTOR" envDefault:"1"`
	PublishTimeout    time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
}

type AppConfig struct {
	Port          string         `env:"APP_PORT" envDefault:"8010"`
	Postgres      PostgresConfig `envPrefix:"PG_"`
	Redis         RedisConfig    `envPrefix:"REDIS_"`
	S3            S3Config       `envPrefix:"S3_"`
	Storage       StorageConfig  `envPrefix:"STORAGE_"`
	Kafka         KafkaConfig    `envPrefix:"KAFKA_"`
	PromoCacheTTL time.Duration  `env:"PROMO_CACHE_TTL" envDefault:"60s"`
	ExportTTL     time.Duration  `env:"EXPORT_TTL" envDefault:"20m"`
}

func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case "local", "s3":
	default:
		return AppConfig{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	return cfg, nil
}
