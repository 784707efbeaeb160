package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CredentialsEnv is the environment variable holding the API key.
const CredentialsEnv = "DEEPSEEK_API_KEY"

const envPrefix = "TELCHAT"

var ErrMissingCredentials = fmt.Errorf("missing API key: set the %s environment variable", CredentialsEnv)

type Config struct {
	LLM   LLMConfig   `mapstructure:"llm"`
	Chat  ChatConfig  `mapstructure:"chat"`
	Retry RetryConfig `mapstructure:"retry"`
	Log   LogConfig   `mapstructure:"log"`
}

type LLMConfig struct {
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	ExitKeyword string `mapstructure:"exit_keyword"`
}

type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffFactor time.Duration `mapstructure:"backoff_factor"`
	StatusCodes   []int         `mapstructure:"status_codes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidationError reports a config key holding an unusable value.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Reason)
}

// Register installs defaults and environment bindings on v. It must run
// before Load so that TELCHAT_* variables are visible to Unmarshal.
func Register(v *viper.Viper) {
	v.SetDefault("llm.url", "https://api.deepseek.com")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.timeout", 5*time.Second)
	v.SetDefault("chat.exit_keyword", "salir")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_factor", 300*time.Millisecond)
	v.SetDefault("retry.status_codes", []int{500, 502, 503, 504})
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.token", CredentialsEnv)
}

func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM.Token = strings.TrimSpace(cfg.LLM.Token)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LLM.Token == "" {
		return ErrMissingCredentials
	}
	u, err := url.Parse(strings.TrimSpace(c.LLM.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Key: "llm.url", Reason: fmt.Sprintf("%q is not an http(s) url", c.LLM.URL)}
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return &ValidationError{Key: "llm.model", Reason: "must not be empty"}
	}
	if c.LLM.Timeout <= 0 {
		return &ValidationError{Key: "llm.timeout", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.Chat.ExitKeyword) == "" {
		return &ValidationError{Key: "chat.exit_keyword", Reason: "must not be empty"}
	}
	if c.Retry.MaxAttempts < 1 {
		return &ValidationError{Key: "retry.max_attempts", Reason: "must be at least 1"}
	}
	if c.Retry.BackoffFactor < 0 {
		return &ValidationError{Key: "retry.backoff_factor", Reason: "must not be negative"}
	}
	for _, code := range c.Retry.StatusCodes {
		if code < 100 || code > 599 {
			return &ValidationError{Key: "retry.status_codes", Reason: fmt.Sprintf("%d is not an http status", code)}
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Key: "log.level", Reason: err.Error()}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{Key: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}

// ParseLevel maps a config level name onto slog.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, errors.New("expected debug, info, warn or error")
	}
	return level, nil
}
