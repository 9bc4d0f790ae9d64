// Package logger настраивает slog для сервиса: текстовый handler в dev,
// zap с sampling-ом в prod.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

type Backend string

const (
	BackendStd Backend = "std" // text handler
	BackendZap Backend = "zap" // slog-zap, JSON + sampling
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: zap для prod, std для dev
	Debug   bool

	AddSource bool
}

var def *slog.Logger

// Init настраивает slog в зависимости от среды.
func Init(cfg Config) {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "app"
	}
	if cfg.InstanceID == "" {
		hn, _ := os.Hostname()
		cfg.InstanceID = hn + "-" + uuid.New().String()[:8]
	}
	if cfg.Backend == "" {
		if cfg.Env == EnvProd {
			cfg.Backend = BackendZap
		} else {
			cfg.Backend = BackendStd
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	h = h.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	})

	base := slog.New(h)
	slog.SetDefault(base)
	def = base
}

func L() *slog.Logger {
	if def != nil {
		return def
	}

	Init(Config{})
	return def
}

func DetectEnv() Env {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV"))) {
	case "prod", "production":
		return EnvProd
	default:
		return EnvDev
	}
}

func levelFor(cfg Config) slog.Level {
	if cfg.Debug && cfg.Level == 0 {
		return slog.LevelDebug
	}
	return cfg.Level
}
