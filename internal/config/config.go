package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Chain      ChainConfig      `mapstructure:"chain"`
	Contracts  ContractsConfig  `mapstructure:"contracts"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ChainConfig struct {
	Name        string `mapstructure:"name"`
	ChainID     int64  `mapstructure:"chain_id"`
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
}

// ContractsConfig carries every on-chain address the indexer talks to. All
// addresses are injected here; nothing is hardcoded in the modules.
type ContractsConfig struct {
	Factory    string   `mapstructure:"factory"`
	Voter      string   `mapstructure:"voter"`
	Oracle     string   `mapstructure:"oracle"`
	RefToken   string   `mapstructure:"ref_token"`
	USDToken   string   `mapstructure:"usd_token"`
	Connectors []string `mapstructure:"connectors"`
}

type AggregatorConfig struct {
	ReserveStrategy string        `mapstructure:"reserve_strategy"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type RealtimeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
}

type SchedulerConfig struct {
	EmissionsInterval time.Duration `mapstructure:"emissions_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("INDEXER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("chain.name", "base")
	viper.SetDefault("aggregator.reserve_strategy", "event-delta")
	viper.SetDefault("aggregator.call_timeout", "10s")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("realtime.enabled", false)
	viper.SetDefault("scheduler.emissions_interval", "5m")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
