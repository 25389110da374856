package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // PostgreSQL配置
	Log      LogConfig      `mapstructure:"log"`      // 日志配置
	Sync     SyncConfig     `mapstructure:"sync"`     // 同步调度配置
	Dump     DumpConfig     `mapstructure:"dump"`     // 月度数据包下载配置
	Geocode  GeocodeConfig  `mapstructure:"geocode"`  // 地理编码配置
	Notify   NotifyConfig   `mapstructure:"notify"`   // 运行结果通知配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogSQL          bool          `mapstructure:"log_sql"`           // 是否打印SQL
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	Months                 int    `mapstructure:"months"`                   // 回溯月份窗口
	BatchSize              int    `mapstructure:"batch_size"`               // 每批记录数
	SupplierFlushThreshold int    `mapstructure:"supplier_flush_threshold"` // 累计多少个合同后提取供应商
	SynthesizeAmendments   bool   `mapstructure:"synthesize_amendments"`    // 是否在同步中生成合成补充协议
	CheckpointPath         string `mapstructure:"checkpoint_path"`          // 断点文件路径，为空时使用临时目录
}

// HTTPConfig 单个外部服务的HTTP客户端配置
type HTTPConfig struct {
	Timeout    int    `mapstructure:"timeout"`     // 请求超时（秒）
	RetryCount int    `mapstructure:"retry_count"` // 重试次数
	Proxy      string `mapstructure:"proxy"`       // 代理地址
}

// DumpConfig 月度XML数据包配置
type DumpConfig struct {
	HTTPConfig `mapstructure:",squash"`
	Source     string `mapstructure:"source"`      // 数据源名称，对应 adapter 注册表
	URLPattern string `mapstructure:"url_pattern"` // 形如 https://data.smlouvy.gov.cz/dump_%04d_%02d.xml
	CacheDir   string `mapstructure:"cache_dir"`   // 本地缓存目录
}

// GeocodeConfig 地理编码服务配置
type GeocodeConfig struct {
	HTTPConfig       `mapstructure:",squash"`
	BaseURL          string        `mapstructure:"base_url"`           // Nominatim兼容的search接口
	UserAgent        string        `mapstructure:"user_agent"`         // 服务要求的客户端标识
	CountryCode      string        `mapstructure:"country_code"`       // 国家限定
	CountryName      string        `mapstructure:"country_name"`       // 拼接到查询末尾的国家名
	Delay            time.Duration `mapstructure:"delay"`              // 每次调用前的强制间隔
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"` // 被限流后的等待时间
	CacheDir         string        `mapstructure:"cache_dir"`          // pebble缓存目录，为空时仅用内存缓存
	Bounds           BoundsConfig  `mapstructure:"bounds"`             // 国家范围与中心点
}

// BoundsConfig 国家地理范围，用于兜底坐标
type BoundsConfig struct {
	CenterLat float64 `mapstructure:"center_lat"`
	CenterLng float64 `mapstructure:"center_lng"`
	JitterLat float64 `mapstructure:"jitter_lat"`
	JitterLng float64 `mapstructure:"jitter_lng"`
	MinLat    float64 `mapstructure:"min_lat"`
	MaxLat    float64 `mapstructure:"max_lat"`
	MinLng    float64 `mapstructure:"min_lng"`
	MaxLng    float64 `mapstructure:"max_lng"`
}

// Contains 判断坐标是否落在范围内
func (b BoundsConfig) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// NotifyConfig 运行结果发布配置（供读侧缓存失效）
type NotifyConfig struct {
	Dir          string `mapstructure:"dir"`           // 写 run-summary.latest.json 的目录
	KafkaBrokers string `mapstructure:"kafka_brokers"` // 逗号分隔
	KafkaTopic   string `mapstructure:"kafka_topic"`
	KafkaKey     string `mapstructure:"kafka_key"`
}

// setDefaults 默认值，config.yaml 中未出现的项使用
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sync.months", 3)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.supplier_flush_threshold", 200)
	v.SetDefault("sync.synthesize_amendments", false)
	v.SetDefault("sync.checkpoint_path", filepath.Join(os.TempDir(), "contractsync-checkpoint.json"))

	v.SetDefault("dump.source", "smlouvy")
	v.SetDefault("dump.url_pattern", "https://data.smlouvy.gov.cz/dump_%04d_%02d.xml")
	v.SetDefault("dump.cache_dir", filepath.Join(os.TempDir(), "contractsync-dumps"))
	v.SetDefault("dump.timeout", 600)
	v.SetDefault("dump.retry_count", 2)

	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.user_agent", "ContractSync/1.0 (open procurement data)")
	v.SetDefault("geocode.country_code", "cz")
	v.SetDefault("geocode.country_name", "Česká republika")
	v.SetDefault("geocode.timeout", 15)
	v.SetDefault("geocode.delay", 1100*time.Millisecond)
	v.SetDefault("geocode.rate_limit_backoff", 30*time.Second)
	v.SetDefault("geocode.bounds.center_lat", 49.8175)
	v.SetDefault("geocode.bounds.center_lng", 15.4730)
	v.SetDefault("geocode.bounds.jitter_lat", 0.5)
	v.SetDefault("geocode.bounds.jitter_lng", 1.0)
	v.SetDefault("geocode.bounds.min_lat", 48.55)
	v.SetDefault("geocode.bounds.max_lat", 51.06)
	v.SetDefault("geocode.bounds.min_lng", 12.09)
	v.SetDefault("geocode.bounds.max_lng", 18.87)

	v.SetDefault("notify.kafka_topic", "contractsync.runs")
	v.SetDefault("notify.kafka_key", "contractsync-run-latest")
}

// LoadConfig 加载配置文件（默认 config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig(path string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GEOCODE_USER_AGENT"); v != "" {
		cfg.Geocode.UserAgent = v
	}
	if v := os.Getenv("GEOCODE_PROXY"); v != "" {
		cfg.Geocode.Proxy = v
	}
	if v := os.Getenv("DUMP_PROXY"); v != "" {
		cfg.Dump.Proxy = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notify.KafkaBrokers = strings.TrimSpace(v)
	}
}

// GetGORMConfig 获取GORM配置
func (m *DatabaseConfig) GetGORMConfig() gorm.Config {
	return gorm.Config{} // 可扩展：添加日志、命名策略等
}
