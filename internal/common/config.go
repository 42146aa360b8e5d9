package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the top-level application configuration, loaded from
// one or more TOML files (later files override earlier ones).
type Config struct {
	Environment string       `toml:"environment" validate:"omitempty,oneof=development production"`
	Server      ServerConfig `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Client      ClientConfig `toml:"client"`
	Spider      SpiderConfig `toml:"spider"`
	Queue       QueueConfig  `toml:"queue"`
}

// ServerConfig is only consulted by the cmd/vireo demo binary; the
// library itself has no network listener.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LoggingConfig configures the arbor-backed structured logger.
type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output     []string `toml:"output" validate:"dive,oneof=stdout file"`
	TimeFormat string   `toml:"time_format"`
}

// ClientConfig carries the defaults applied to every grab.Client built
// by the spider's network worker pool.
type ClientConfig struct {
	UserAgent       string        `toml:"user_agent"`
	ReuseCookies    bool          `toml:"reuse_cookies"`
	RedirectLimit   int           `toml:"redirect_limit" validate:"gte=0"`
	Timeout         time.Duration `toml:"timeout"`
	ConnectTimeout  time.Duration `toml:"connect_timeout"`
}

// SpiderConfig configures the spider runtime.
type SpiderConfig struct {
	ThreadNumber     int    `toml:"thread_number" validate:"gte=1"`
	NetworkTryLimit  int    `toml:"network_try_limit" validate:"gte=0"`
	TaskTryLimit     int    `toml:"task_try_limit" validate:"gte=0"`
	PriorityMode     string `toml:"priority_mode" validate:"omitempty,oneof=random const"`
	ParserPoolSize   int    `toml:"parser_pool_size" validate:"gte=1"`
}

// QueueConfig selects and configures the spider's QueueBackend.
type QueueConfig struct {
	Backend    string `toml:"backend" validate:"omitempty,oneof=memory badger"`
	BadgerPath string `toml:"badger_path"`
}

// NewDefaultConfig returns a Config with sane defaults; callers layer
// TOML files on top of it with LoadConfig.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Client: ClientConfig{
			UserAgent:      "vireo/1.0",
			ReuseCookies:   true,
			RedirectLimit:  5,
			Timeout:        30 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Spider: SpiderConfig{
			ThreadNumber:    10,
			NetworkTryLimit: 3,
			TaskTryLimit:    3,
			PriorityMode:    "const",
			ParserPoolSize:  1,
		},
		Queue: QueueConfig{
			Backend:    "memory",
			BadgerPath: "./data/queue",
		},
	}
}

// LoadConfig layers one or more TOML files onto the default configuration
// and validates the result. Later files override fields set by earlier
// ones; a file that omits a section leaves the prior value untouched
// thanks to toml.Unmarshal's in-place merge onto an already-populated
// struct.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
