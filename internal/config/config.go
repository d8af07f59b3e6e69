package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig
	Poll    PollConfig
	Session SessionConfig
	Redis   RedisConfig
	Logger  LoggerConfig
	Stub    StubConfig
	LLM     LLMConfig
}

// APIConfig points the client at the remote quiz API.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PollConfig bounds feedback-status polling.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Timeout         time.Duration
}

type SessionConfig struct {
	// Store is "file", "memory" or "redis".
	Store string
	// File is the session file of the "file" store. Empty means the user config dir.
	File string
	TTL  time.Duration
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoggerConfig struct {
	Env   string
	Level string
}

type StubConfig struct {
	Port             int
	JWTSecret        string
	FeedbackCacheTTL time.Duration
	SeedFile         string
}

type LLMConfig struct {
	Server  string
	Model   string
	Timeout time.Duration
}

const (
	DefaultPollInitialInterval = 3 * time.Second
	DefaultPollMaxInterval     = 30 * time.Second
	DefaultPollMultiplier      = 1.5
	DefaultPollMaxAttempts     = 40
	DefaultPollTimeout         = 5 * time.Minute
)

func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if os.Getenv("ENV") == "test" {
		v.AddConfigPath("../../config")
		v.AddConfigPath("../../")
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if configFile := v.ConfigFileUsed(); configFile != "" {
		absPath, _ := filepath.Abs(configFile)
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", absPath)
	}

	cfg := fromViper(v)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8090/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("poll.initial_interval", DefaultPollInitialInterval.String())
	v.SetDefault("poll.max_interval", DefaultPollMaxInterval.String())
	v.SetDefault("poll.multiplier", DefaultPollMultiplier)
	v.SetDefault("poll.max_attempts", DefaultPollMaxAttempts)
	v.SetDefault("poll.timeout", DefaultPollTimeout.String())
	v.SetDefault("session.store", "file")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("logger.env", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("stub.port", 8090)
	v.SetDefault("stub.jwt_secret", "local-dev-secret")
	v.SetDefault("stub.feedback_cache_ttl", "1h")
	v.SetDefault("llm.model", "qwen3:0.6b")
	v.SetDefault("llm.timeout", "60s")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Poll: PollConfig{
			InitialInterval: v.GetDuration("poll.initial_interval"),
			MaxInterval:     v.GetDuration("poll.max_interval"),
			Multiplier:      v.GetFloat64("poll.multiplier"),
			MaxAttempts:     v.GetInt("poll.max_attempts"),
			Timeout:         v.GetDuration("poll.timeout"),
		},
		Session: SessionConfig{
			Store: v.GetString("session.store"),
			File:  v.GetString("session.file"),
			TTL:   v.GetDuration("session.ttl"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Logger: LoggerConfig{
			Env:   v.GetString("logger.env"),
			Level: v.GetString("logger.level"),
		},
		Stub: StubConfig{
			Port:             v.GetInt("stub.port"),
			JWTSecret:        v.GetString("stub.jwt_secret"),
			FeedbackCacheTTL: v.GetDuration("stub.feedback_cache_ttl"),
			SeedFile:         v.GetString("stub.seed_file"),
		},
		LLM: LLMConfig{
			Server:  v.GetString("llm.server"),
			Model:   v.GetString("llm.model"),
			Timeout: v.GetDuration("llm.timeout"),
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if baseURL := os.Getenv("API_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if interval := os.Getenv("POLL_INITIAL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Poll.InitialInterval = d
		}
	}
	if attempts := os.Getenv("POLL_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Poll.MaxAttempts = n
		}
	}
	if store := os.Getenv("SESSION_STORE"); store != "" {
		cfg.Session.Store = store
	}
	if redisAddress := os.Getenv("REDIS_ADDRESS"); redisAddress != "" {
		cfg.Redis.Address = redisAddress
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if llmServer := os.Getenv("LLM_SERVER"); llmServer != "" {
		cfg.LLM.Server = llmServer
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Stub.JWTSecret = secret
	}
	if port := os.Getenv("STUB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Stub.Port = n
		}
	}
	if env := os.Getenv("ENV"); env != "" && cfg.Logger.Env == "" {
		cfg.Logger.Env = env
	}
}

// Validate rejects configurations the poller or session store cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.Poll.InitialInterval <= 0 {
		return fmt.Errorf("poll.initial_interval must be positive, got %s", c.Poll.InitialInterval)
	}
	if c.Poll.Multiplier < 1 {
		return fmt.Errorf("poll.multiplier must be >= 1, got %v", c.Poll.Multiplier)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll.max_attempts must not be negative")
	}
	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("session.store is redis but redis.address is empty")
		}
	default:
		return fmt.Errorf("unsupported session.store %q", c.Session.Store)
	}
	return nil
}

// PollDefaults returns the polling settings used when no config file is present.
func PollDefaults() PollConfig {
	return PollConfig{
		InitialInterval: DefaultPollInitialInterval,
		MaxInterval:     DefaultPollMaxInterval,
		Multiplier:      DefaultPollMultiplier,
		MaxAttempts:     DefaultPollMaxAttempts,
		Timeout:         DefaultPollTimeout,
	}
}
