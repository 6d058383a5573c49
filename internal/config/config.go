package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	EvictionGrace   time.Duration `mapstructure:"eviction_grace"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`

	RedisAddr string `mapstructure:"redis_addr"`
	NatsURL   string `mapstructure:"nats_url"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	// Heartbeat every 5 minutes; grace is 2x so one missed beat never evicts.
	v.SetDefault("heartbeat_period", "5m")
	v.SetDefault("eviction_grace", "10m")
	v.SetDefault("sweep_interval", "5m")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("idle_timeout", "30m")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Heartbeat: %s | Idle: %s\n", cfg.Mode, cfg.Port, cfg.HeartbeatPeriod, cfg.IdleTimeout)
	return &cfg, nil
}
