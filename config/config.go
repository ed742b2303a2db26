package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Match    MatchConfig    `mapstructure:"match"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	MetricsAddress    string        `mapstructure:"metrics_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	OutboxSize        int           `mapstructure:"outbox_size"`
}

// MatchConfig tunes the matchmaking core. Zero TTLs keep waiting players and
// open rooms until they are cancelled, completed or disconnected.
type MatchConfig struct {
	InitialRemaining int           `mapstructure:"initial_remaining"`
	QueueTTL         time.Duration `mapstructure:"queue_ttl"`
	RoomTTL          time.Duration `mapstructure:"room_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// DatabaseConfig selects the match history backend: "gorm", "pq" or empty
// for in-memory history.
type DatabaseConfig struct {
	Driver        string         `mapstructure:"driver"`
	HistoryBuffer int            `mapstructure:"history_buffer"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.poll_timeout", 60*time.Second)
	v.SetDefault("server.outbox_size", 256)

	v.SetDefault("match.initial_remaining", 64)
	v.SetDefault("match.queue_ttl", time.Duration(0))
	v.SetDefault("match.room_ttl", time.Duration(0))
	v.SetDefault("match.sweep_interval", 5*time.Second)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.history_buffer", 128)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "puzzleduel")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and PUZZLEDUEL_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("puzzleduel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
