package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	FailedSet FailedSetConfig `mapstructure:"failed_set"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Reporting ReportingConfig `mapstructure:"reporting"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

// StoreConfig selects the local durable store. sqlite is the default for a
// single agent, mysql lets several agents share one queue.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RemoteConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout"`
	ResolutionTimeout time.Duration `mapstructure:"resolution_timeout"`
	ReportTimeout     time.Duration `mapstructure:"report_timeout"`
	ProbeURL          string        `mapstructure:"probe_url"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
}

type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	Retention   time.Duration `mapstructure:"retention"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	DispatchRPS float64       `mapstructure:"dispatch_rps"`
}

type FailedSetConfig struct {
	Backend string `mapstructure:"backend"`
	Key     string `mapstructure:"key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	LockKey     string        `mapstructure:"lock_key"`
}

type ReportingConfig struct {
	Sink         string   `mapstructure:"sink"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HubBufferSize     int           `mapstructure:"hub_buffer_size"`
	ReplayBufferSize  int           `mapstructure:"replay_buffer_size"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	DevPass   bool          `mapstructure:"dev_pass"`
}

type RateLimitConfig struct {
	RequestsPerSecond     int `mapstructure:"requests_per_second"`
	SyncRequestsPerSecond int `mapstructure:"sync_requests_per_second"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8765")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "rollcall.db")

	v.SetDefault("remote.base_url", "http://localhost:3000")
	v.SetDefault("remote.submit_timeout", 90*time.Second)
	v.SetDefault("remote.resolution_timeout", 10*time.Second)
	v.SetDefault("remote.report_timeout", 10*time.Second)
	v.SetDefault("remote.probe_timeout", 5*time.Second)
	v.SetDefault("remote.probe_interval", time.Duration(0))

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.settle_delay", time.Second)
	v.SetDefault("sync.retention", 7*24*time.Hour)
	v.SetDefault("sync.dedup_window", time.Hour)
	v.SetDefault("sync.dispatch_rps", 0)

	v.SetDefault("failed_set.backend", "sql")
	v.SetDefault("failed_set.key", "failed_sync_items")

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.lock_key", "/rollcall/locks/sync")

	v.SetDefault("reporting.sink", "http")
	v.SetDefault("reporting.kafka_topic", "rollcall.sync-errors")

	v.SetDefault("stream.heartbeat_interval", 15*time.Second)
	v.SetDefault("stream.hub_buffer_size", 256)
	v.SetDefault("stream.replay_buffer_size", 512)

	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.dev_pass", true)

	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.sync_requests_per_second", 1)
}

// Load reads config.yaml (when present) and ROLLCALL_* env overrides.
// An explicit path takes precedence over the search paths.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}
