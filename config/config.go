package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Quest    QuestConfig    `mapstructure:"quest"`
	Game     GameConfig     `mapstructure:"game"`
	Security SecurityConfig `mapstructure:"security"`
	Script   ScriptConfig   `mapstructure:"script"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	// SlowQuery is the duration above which a query is logged at Warn.
	SlowQuery  time.Duration `mapstructure:"slow_query"`
	LogQueries bool          `mapstructure:"log_queries"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// LogConfig controls the optional rotating log file. An empty File logs to stderr only.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type QuestConfig struct {
	ContentPath        string `mapstructure:"content_path"`
	StartingStep       int    `mapstructure:"starting_step"`
	DefaultMinLevel    int    `mapstructure:"default_min_level"`
	DefaultMaxLevel    int    `mapstructure:"default_max_level"`
	DefaultMaxRepeat   int    `mapstructure:"default_max_repeat"`
	VisibilityDistance int    `mapstructure:"visibility_distance"`
	// OfferTTL bounds how long an accept/decline prompt stays answerable.
	OfferTTL            time.Duration `mapstructure:"offer_ttl"`
	DispatchQueue       int           `mapstructure:"dispatch_queue"`
	PersistQueue        int           `mapstructure:"persist_queue"`
	TeleportEmoteOffset time.Duration `mapstructure:"teleport_emote_offset"`
	TeleportPortOffset  time.Duration `mapstructure:"teleport_port_offset"`
}

type GameConfig struct {
	MaxPartySize  int `mapstructure:"max_party_size"`
	BagSlots      int `mapstructure:"bag_slots"`
	SaveIntervalS int `mapstructure:"save_interval_s"`
	StartRegion   int `mapstructure:"start_region"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPWhitelist restricts /api/admin to these IPs or CIDRs. Empty allows all.
	AdminIPWhitelist []string `mapstructure:"admin_ip_whitelist"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ScriptConfig struct {
	VMPoolSize int           `mapstructure:"vm_pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/quest.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("quest.content_path", "./data/quests.yaml")
	v.SetDefault("quest.starting_step", 1)
	v.SetDefault("quest.default_min_level", 1)
	v.SetDefault("quest.default_max_level", 50)
	v.SetDefault("quest.default_max_repeat", 1)
	v.SetDefault("quest.visibility_distance", 3600)
	v.SetDefault("quest.offer_ttl", "5m")
	v.SetDefault("quest.dispatch_queue", 1024)
	v.SetDefault("quest.persist_queue", 1024)
	v.SetDefault("quest.teleport_emote_offset", "2s")
	v.SetDefault("quest.teleport_port_offset", "3s")
	v.SetDefault("game.max_party_size", 8)
	v.SetDefault("game.bag_slots", 40)
	v.SetDefault("game.save_interval_s", 300)
	v.SetDefault("game.start_region", 1)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("script.vm_pool_size", 8)
	v.SetDefault("script.timeout", "200ms")
}
