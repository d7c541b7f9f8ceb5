package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // realtime-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"`
}

type Redis struct {
	URL           string `yaml:"url"` // пусто - события CRUD только через HTTP
	CollabChannel string `yaml:"collabChannel"`
}

type Store struct {
	Backend string `yaml:"backend"` // postgres|memory
}

type Membership struct {
	Backend string `yaml:"backend"` // postgres|open
}

type Auth struct {
	Alg           string        `yaml:"alg"` // RS256|HS256
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Secret        string        `yaml:"secret"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type Realtime struct {
	SendQueueSize  int           `yaml:"sendQueueSize"`
	Overflow       string        `yaml:"overflow"` // drop|disconnect
	TypingTTL      time.Duration `yaml:"typingTTL"`
	PingEvery      time.Duration `yaml:"pingEvery"`
	WriteWait      time.Duration `yaml:"writeWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
}

type History struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
}

type Internal struct {
	Token string `yaml:"token"` // X-Internal-Token для /internal/events
}

type Config struct {
	HTTP            HTTP          `yaml:"http"`
	GRPC            GRPC          `yaml:"grpc"`
	Logging         Logging       `yaml:"logging"`
	Postgres        Postgres      `yaml:"postgres"`
	Redis           Redis         `yaml:"redis"`
	Store           Store         `yaml:"store"`
	Membership      Membership    `yaml:"membership"`
	Auth            Auth          `yaml:"auth"`
	Realtime        Realtime      `yaml:"realtime"`
	History         History       `yaml:"history"`
	Internal        Internal      `yaml:"internal"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoadConfig читает .env (если есть), затем YAML из CONFIG_PATH.
// ${VAR} в YAML подставляются из окружения.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
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

	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Backend == "" {
		c.Store.Backend = "postgres"
	}
	c.Membership.Backend = strings.ToLower(c.Membership.Backend)
	if c.Membership.Backend == "" {
		c.Membership.Backend = c.Store.Backend
	}
	switch c.Store.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.backend must be postgres|memory, got %q", c.Store.Backend)
	}
	switch c.Membership.Backend {
	case "postgres", "open":
	case "memory":
		c.Membership.Backend = "open"
	default:
		return fmt.Errorf("membership.backend must be postgres|open, got %q", c.Membership.Backend)
	}
	if (c.Store.Backend == "postgres" || c.Membership.Backend == "postgres") && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}

	switch strings.ToUpper(c.Auth.Alg) {
	case "", "RS256":
		c.Auth.Alg = "RS256"
		if c.Auth.PublicKeyPath == "" {
			return errors.New("auth.publicKeyPath is required for RS256")
		}
	case "HS256":
		c.Auth.Alg = "HS256"
		if c.Auth.Secret == "" {
			return errors.New("auth.secret is required for HS256")
		}
	default:
		return fmt.Errorf("auth.alg must be RS256|HS256, got %q", c.Auth.Alg)
	}

	switch c.Realtime.Overflow {
	case "":
		c.Realtime.Overflow = "disconnect"
	case "drop", "disconnect":
	default:
		return fmt.Errorf("realtime.overflow must be drop|disconnect, got %q", c.Realtime.Overflow)
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "realtime-service"
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

	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}

	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Redis.CollabChannel == "" {
		c.Redis.CollabChannel = "collab.events"
	}
	c.Auth.ClockSkew = durationOr(c.Auth.ClockSkew, 30*time.Second)

	if c.Realtime.SendQueueSize <= 0 {
		c.Realtime.SendQueueSize = 256
	}
	c.Realtime.TypingTTL = durationOr(c.Realtime.TypingTTL, 3*time.Second)
	c.Realtime.PingEvery = durationOr(c.Realtime.PingEvery, 15*time.Second)
	c.Realtime.WriteWait = durationOr(c.Realtime.WriteWait, 5*time.Second)
	if c.Realtime.MaxMessageSize <= 0 {
		c.Realtime.MaxMessageSize = 1 << 20
	}

	if c.History.MaxLimit <= 0 {
		c.History.MaxLimit = 100
	}
	if c.History.DefaultLimit <= 0 || c.History.DefaultLimit > c.History.MaxLimit {
		c.History.DefaultLimit = min(50, c.History.MaxLimit)
	}

	c.ShutdownTimeout = durationOr(c.ShutdownTimeout, 10*time.Second)
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
