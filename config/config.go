package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"requestTimeout"` // default 10s
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // presence-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Redis struct {
	// URL redis-а для shared store и очереди; пусто — in-memory режим.
	URL string `yaml:"url"`
}

type Sync struct {
	EventTTL          string `yaml:"eventTTL"`          // default 10s
	FlyingMessageTTL  string `yaml:"flyingMessageTTL"`  // default 7s
	HeartbeatInterval string `yaml:"heartbeatInterval"` // default 5s
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Sync     Sync     `yaml:"sync"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "presence-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

// EventTTL — время жизни эфемерного события.
func (c *Config) EventTTL() time.Duration {
	return parseDurationOr(10*time.Second, c.Sync.EventTTL)
}

// FlyingMessageTTL — время жизни flying message (короче событий).
func (c *Config) FlyingMessageTTL() time.Duration {
	return parseDurationOr(7*time.Second, c.Sync.FlyingMessageTTL)
}

// HeartbeatInterval — период liveness-записи активной задачи.
func (c *Config) HeartbeatInterval() time.Duration {
	return parseDurationOr(5*time.Second, c.Sync.HeartbeatInterval)
}

// GRPCRequestTimeout — дедлайн unary-запросов gRPC-сервера.
func (c *Config) GRPCRequestTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.GRPC.RequestTimeout)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
