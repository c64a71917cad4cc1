package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	BreakoutPrefix  string `mapstructure:"breakout_prefix"`
	PublicURL       string `mapstructure:"public_url"`
	DefaultUsername string `mapstructure:"default_username"`
	MaxUsernameLen  int    `mapstructure:"max_username_len"`

	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	STUNURLs       []string `mapstructure:"stun_urls"`
	TURNURLs       []string `mapstructure:"turn_urls"`
	TURNUsername   string   `mapstructure:"turn_username"`
	TURNCredential string   `mapstructure:"turn_credential"`
}

// PongWait is how long a connection may stay silent before it is considered dead.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "dev-secret-change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("breakout_prefix", "/breakout/")
	v.SetDefault("public_url", "")
	v.SetDefault("default_username", "Anonymous")
	v.SetDefault("max_username_len", 36)
	v.SetDefault("chat_rate_limit", 10)
	v.SetDefault("chat_rate_interval", "10s")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("turn_urls", []string{})
	v.SetDefault("turn_username", "")
	v.SetDefault("turn_credential", "")
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults only, cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	if !strings.HasPrefix(c.BreakoutPrefix, "/") || !strings.HasSuffix(c.BreakoutPrefix, "/") {
		return fmt.Errorf("breakout_prefix %q must start and end with '/'", c.BreakoutPrefix)
	}
	if c.ChatRateLimit <= 0 || c.ChatRateInterval <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}
	return nil
}
