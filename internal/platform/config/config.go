package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// App 用于默认配置目录、缓存目录和环境变量前缀
	App       = "bitcli"
	envPrefix = "BITCLI_"

	DefaultAPIURL        = "https://api-ssl.bitly.com"
	DefaultMaxConcurrent = 16
)

var ErrInvalidConfig = errors.New("invalid config")

// Secret 包装敏感字符串，打印和写日志时不会泄露原值。
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "********"
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Reveal 返回原值，只在发请求时使用。
func (s Secret) Reveal() string {
	return string(s)
}

type Config struct {
	APIURL   string
	APIToken Secret

	// Domain 为空表示使用账号默认域名（bit.ly）
	Domain string
	// DefaultGroupGUID 为空时运行时查询当前用户的默认分组
	DefaultGroupGUID string

	// CacheDir 为 nil 表示使用平台缓存目录，指向空字符串表示禁用缓存
	CacheDir      *string
	CacheBackend  string // sqlite / redis
	RedisAddr     string
	RedisPassword Secret
	RedisDB       int

	// Offline 为 true 时不发任何 API 请求，只依赖本地缓存
	Offline       bool
	MaxConcurrent int
	Ordering      string
	HTTPTimeout   time.Duration

	// 日志配置信息
	LogLevel  slog.Level
	LogFormat string

	OtlpGrpcEndpoint string
	OtlpServiceName  string
	TracingEnabled   bool

	// MetricsFile 不为空时，退出前把指标写成 textfile 格式
	MetricsFile string
}

func Default() Config {
	return Config{
		APIURL:        DefaultAPIURL,
		CacheBackend:  "sqlite",
		RedisAddr:     "localhost:6379",
		MaxConcurrent: DefaultMaxConcurrent,
		Ordering:      "ordered",
		HTTPTimeout:   10 * time.Second,

		LogLevel:  slog.LevelWarn,
		LogFormat: "text",

		OtlpGrpcEndpoint: "127.0.0.1:4317",
		OtlpServiceName:  App,
		TracingEnabled:   false,
	}
}

// Load 依次叠加：默认值 -> 配置文件（及其 import）-> BITCLI_* 环境变量。
//
// path 为空时查找默认配置文件 <UserConfigDir>/bitcli/config.yaml，不存在则跳过；
// 显式给出的 path 不存在会返回错误。
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load(".env")

	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	if path != "" {
		fc, err := loadFile(path)
		switch {
		case err == nil:
			fc.apply(&cfg)
		case !explicit && errors.Is(err, os.ErrNotExist):
			slog.Debug("config: no config file", "path", path)
		default:
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultFile 返回默认配置文件路径，无法确定时返回空字符串。
func DefaultFile() string {
	if v, ok := os.LookupEnv(envPrefix + "CONFIG_FILE"); ok && v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, App, "config.yaml")
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("API_URL"); ok {
		cfg.APIURL = v
	}
	if v, ok := lookup("API_TOKEN"); ok {
		cfg.APIToken = Secret(v)
	}
	if v, ok := lookup("DOMAIN"); ok {
		cfg.Domain = v
	}
	if v, ok := lookup("GROUP_GUID"); ok {
		cfg.DefaultGroupGUID = v
	}
	// 空字符串也有意义（禁用缓存），所以这里不用 lookup
	if v, ok := os.LookupEnv(envPrefix + "CACHE_DIR"); ok {
		cfg.CacheDir = &v
	}
	if v, ok := lookup("NO_CACHE"); ok && parseBool(v) {
		empty := ""
		cfg.CacheDir = &empty
	}
	if v, ok := lookup("CACHE_BACKEND"); ok {
		cfg.CacheBackend = strings.ToLower(v)
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = Secret(v)
	}
	if v, ok := lookup("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %sREDIS_DB must be a non-negative integer, got %q", ErrInvalidConfig, envPrefix, v)
		}
		cfg.RedisDB = n
	}
	if v, ok := lookup("OFFLINE"); ok {
		cfg.Offline = parseBool(v)
	}
	if v, ok := lookup("MAX_CONCURRENT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %sMAX_CONCURRENT must be a positive integer, got %q", ErrInvalidConfig, envPrefix, v)
		}
		cfg.MaxConcurrent = n
	}
	if v, ok := lookup("ORDERING"); ok {
		cfg.Ordering = strings.ToLower(v)
	}
	if v, ok := lookup("HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %sHTTP_TIMEOUT must be a positive duration, got %q", ErrInvalidConfig, envPrefix, v)
		}
		cfg.HTTPTimeout = d
	}
	if v, ok := lookup("METRICS_FILE"); ok {
		cfg.MetricsFile = v
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = parseLevel(v)
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if v, ok := lookup("TRACING_ENABLED"); ok {
		cfg.TracingEnabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		cfg.OtlpGrpcEndpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	if v, ok := lookup("OTLP_SERVICE_NAME"); ok {
		cfg.OtlpServiceName = v
	}
	return nil
}

// Options 是命令行给出的覆盖项，只有非 nil 的字段会生效。
type Options struct {
	Domain        *string
	GroupGUID     *string
	CacheDir      *string
	Offline       *bool
	MaxConcurrent *int
	Ordering      *string
}

// Override 用命令行选项覆盖当前配置
func (c *Config) Override(ops Options) {
	if ops.Domain != nil {
		c.Domain = *ops.Domain
	}
	if ops.GroupGUID != nil {
		c.DefaultGroupGUID = *ops.GroupGUID
	}
	if ops.CacheDir != nil {
		dir := *ops.CacheDir
		c.CacheDir = &dir
	}
	if ops.Offline != nil {
		c.Offline = *ops.Offline
	}
	if ops.MaxConcurrent != nil {
		c.MaxConcurrent = *ops.MaxConcurrent
	}
	if ops.Ordering != nil {
		c.Ordering = strings.ToLower(*ops.Ordering)
	}
}

// CacheDisabled 报告缓存是否被显式关闭（cache_dir 为空字符串）。
func (c Config) CacheDisabled() bool {
	return c.CacheDir != nil && *c.CacheDir == ""
}

// Validate 检查合并后的最终配置。
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent must be >= 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api_url %q is not an absolute URL", ErrInvalidConfig, c.APIURL)
	}
	if !c.Offline && c.APIToken == "" {
		return fmt.Errorf("%w: api_token is required unless running offline", ErrInvalidConfig)
	}
	if c.Offline && c.CacheDisabled() {
		return fmt.Errorf("%w: offline mode needs the cache, but caching is disabled", ErrInvalidConfig)
	}
	switch c.CacheBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("%w: cache_backend must be sqlite or redis, got %q", ErrInvalidConfig, c.CacheBackend)
	}
	switch c.Ordering {
	case "ordered", "unordered":
	default:
		return fmt.Errorf("%w: ordering must be ordered or unordered, got %q", ErrInvalidConfig, c.Ordering)
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
