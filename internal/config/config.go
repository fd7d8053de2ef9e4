package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 全局配置
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	JWT       JWTConfig
	Sync      SyncConfig
	Token     TokenConfig
	Analytics AnalyticsConfig
	Partition PartitionConfig
	Platforms map[string]PlatformConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string // postgres | sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	SlowThreshold   time.Duration
}

// RedisConfig Redis 配置（仅用于分布式写锁）
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
}

// SyncConfig 同步引擎配置
type SyncConfig struct {
	Enabled         bool
	Cron            string
	DefaultDaysBack int
	MaxDaysBack     int
	Concurrency     int // 单用户平台并发
	UserConcurrency int // 定时任务的用户并发
	PageSize        int
	MaxPages        int
	PageTimeout     time.Duration
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	RunTimeout      time.Duration
	ManualCooldown  time.Duration
}

// TokenConfig Token 保活配置
type TokenConfig struct {
	Enabled      bool
	Cron         string
	RefreshAhead time.Duration
	RefreshSkew  time.Duration
	Concurrency  int
}

// AnalyticsConfig 分析配置
type AnalyticsConfig struct {
	HighValueThreshold  float64
	NewCustomerLookback time.Duration
	TopProductsLimit    int
	Timezone            string
	ExcludeCancelled    bool
}

// PartitionConfig sync_runs 分区配置（仅 postgres）
type PartitionConfig struct {
	Enabled         bool
	FutureMonths    int
	RetentionMonths int
	Interval        time.Duration
}

// PlatformConfig 单个平台的应用凭据与接入参数
type PlatformConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	RequestsPerSecond float64
	Burst             int
}

// ==================== 加载 ====================

// Load 加载配置
// 优先级: LEDGER_ 前缀环境变量 > config.yaml > 默认值
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		JWT: JWTConfig{
			Secret:    v.GetString("jwt.secret"),
			Issuer:    v.GetString("jwt.issuer"),
			AccessTTL: v.GetDuration("jwt.access_ttl"),
		},
		Sync: SyncConfig{
			Enabled:         v.GetBool("sync.enabled"),
			Cron:            v.GetString("sync.cron"),
			DefaultDaysBack: v.GetInt("sync.default_days_back"),
			MaxDaysBack:     v.GetInt("sync.max_days_back"),
			Concurrency:     v.GetInt("sync.concurrency"),
			UserConcurrency: v.GetInt("sync.user_concurrency"),
			PageSize:        v.GetInt("sync.page_size"),
			MaxPages:        v.GetInt("sync.max_pages"),
			PageTimeout:     v.GetDuration("sync.page_timeout"),
			MaxAttempts:     v.GetInt("sync.max_attempts"),
			InitialBackoff:  v.GetDuration("sync.initial_backoff"),
			MaxBackoff:      v.GetDuration("sync.max_backoff"),
			RunTimeout:      v.GetDuration("sync.run_timeout"),
			ManualCooldown:  v.GetDuration("sync.manual_cooldown"),
		},
		Token: TokenConfig{
			Enabled:      v.GetBool("token.enabled"),
			Cron:         v.GetString("token.cron"),
			RefreshAhead: v.GetDuration("token.refresh_ahead"),
			RefreshSkew:  v.GetDuration("token.refresh_skew"),
			Concurrency:  v.GetInt("token.concurrency"),
		},
		Analytics: AnalyticsConfig{
			HighValueThreshold:  v.GetFloat64("analytics.high_value_threshold"),
			NewCustomerLookback: v.GetDuration("analytics.new_customer_lookback"),
			TopProductsLimit:    v.GetInt("analytics.top_products_limit"),
			Timezone:            v.GetString("analytics.timezone"),
			ExcludeCancelled:    v.GetBool("analytics.exclude_cancelled"),
		},
		Partition: PartitionConfig{
			Enabled:         v.GetBool("partition.enabled"),
			FutureMonths:    v.GetInt("partition.future_months"),
			RetentionMonths: v.GetInt("partition.retention_months"),
			Interval:        v.GetDuration("partition.interval"),
		},
		Platforms: loadPlatforms(v),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 内置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sales-ledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=sales_ledger port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("jwt.secret", "sales-ledger-secret-change-in-production")
	v.SetDefault("jwt.issuer", "sales-ledger")
	v.SetDefault("jwt.access_ttl", 2*time.Hour)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.cron", "0 */30 * * * *")
	v.SetDefault("sync.default_days_back", 7)
	v.SetDefault("sync.max_days_back", 365)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.user_concurrency", 5)
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.max_pages", 50)
	v.SetDefault("sync.page_timeout", 30*time.Second)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.initial_backoff", 500*time.Millisecond)
	v.SetDefault("sync.max_backoff", 10*time.Second)
	v.SetDefault("sync.run_timeout", 10*time.Minute)
	v.SetDefault("sync.manual_cooldown", 2*time.Minute)

	v.SetDefault("token.enabled", true)
	v.SetDefault("token.cron", "0 0/40 * * * *")
	v.SetDefault("token.refresh_ahead", time.Hour)
	v.SetDefault("token.refresh_skew", time.Minute)
	v.SetDefault("token.concurrency", 10)

	v.SetDefault("analytics.high_value_threshold", 30.0)
	v.SetDefault("analytics.new_customer_lookback", 30*24*time.Hour)
	v.SetDefault("analytics.top_products_limit", 10)
	v.SetDefault("analytics.timezone", "UTC")
	v.SetDefault("analytics.exclude_cancelled", false)

	v.SetDefault("partition.enabled", true)
	v.SetDefault("partition.future_months", 3)
	v.SetDefault("partition.retention_months", 12)
	v.SetDefault("partition.interval", 24*time.Hour)

	v.SetDefault("platforms.etsy.base_url", "https://openapi.etsy.com")
	v.SetDefault("platforms.etsy.token_url", "https://api.etsy.com/v3/public/oauth/token")
	v.SetDefault("platforms.etsy.requests_per_second", 5)
	v.SetDefault("platforms.shopify.requests_per_second", 2)
	v.SetDefault("platforms.ebay.base_url", "https://api.ebay.com")
	v.SetDefault("platforms.ebay.token_url", "https://api.ebay.com/identity/v1/oauth2/token")
	v.SetDefault("platforms.ebay.requests_per_second", 5)
	v.SetDefault("platforms.woocommerce.requests_per_second", 5)
}

// loadPlatforms 逐个平台读取，保证环境变量覆盖同样生效
func loadPlatforms(v *viper.Viper) map[string]PlatformConfig {
	names := map[string]struct{}{}
	for _, key := range v.AllKeys() {
		rest, ok := strings.CutPrefix(key, "platforms.")
		if !ok {
			continue
		}
		if name, _, found := strings.Cut(rest, "."); found {
			names[name] = struct{}{}
		}
	}

	out := make(map[string]PlatformConfig, len(names))
	for name := range names {
		prefix := "platforms." + name + "."
		out[name] = PlatformConfig{
			BaseURL:           v.GetString(prefix + "base_url"),
			TokenURL:          v.GetString(prefix + "token_url"),
			ClientID:          v.GetString(prefix + "client_id"),
			ClientSecret:      v.GetString(prefix + "client_secret"),
			RequestsPerSecond: v.GetFloat64(prefix + "requests_per_second"),
			Burst:             v.GetInt(prefix + "burst"),
		}
	}
	return out
}

// validate 校验配置
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn 不能为空")
	}
	if c.Sync.Concurrency <= 0 {
		return errors.New("sync.concurrency 必须大于 0")
	}
	if c.Sync.PageSize <= 0 || c.Sync.MaxPages <= 0 {
		return errors.New("sync.page_size 与 sync.max_pages 必须大于 0")
	}
	if c.Sync.MaxAttempts <= 0 {
		return errors.New("sync.max_attempts 必须大于 0")
	}
	if c.Sync.PageTimeout <= 0 {
		return errors.New("sync.page_timeout 必须大于 0")
	}
	if c.Analytics.HighValueThreshold < 0 {
		return errors.New("analytics.high_value_threshold 不能为负数")
	}
	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("analytics.timezone 无效: %w", err)
	}
	if c.App.Env == "production" && c.JWT.Secret == "sales-ledger-secret-change-in-production" {
		return errors.New("生产环境必须设置 jwt.secret")
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Location 分析使用的时区
func (c *AnalyticsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
