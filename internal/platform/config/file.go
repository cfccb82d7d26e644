package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig 是配置文件的内容。所有字段都是指针：只有文件里写了的 key 才会覆盖。
type fileConfig struct {
	Import []string `yaml:"import"`

	APIURL           *string `yaml:"api_url"`
	APIToken         *string `yaml:"api_token"`
	Domain           *string `yaml:"domain"`
	DefaultGroupGUID *string `yaml:"default_group_guid"`

	CacheDir      *string `yaml:"cache_dir"`
	CacheBackend  *string `yaml:"cache_backend"`
	RedisAddr     *string `yaml:"redis_addr"`
	RedisPassword *string `yaml:"redis_password"`
	RedisDB       *int    `yaml:"redis_db"`

	Offline       *bool   `yaml:"offline"`
	MaxConcurrent *int    `yaml:"max_concurrent"`
	Ordering      *string `yaml:"ordering"`
	HTTPTimeout   *string `yaml:"http_timeout"`

	TracingEnabled   *bool   `yaml:"tracing_enabled"`
	OtlpGrpcEndpoint *string `yaml:"otlp_grpc_endpoint"`
	OtlpServiceName  *string `yaml:"otlp_service_name"`
	MetricsFile      *string `yaml:"metrics_file"`
}

// import 嵌套的最大深度，防止循环引用
const maxImportDepth = 8

// loadFile 读取配置文件并合并它的 import 列表。
//
// import 里的路径相对于当前文件所在目录，支持 ~/ 开头；不存在的 import 跳过。
// 合并顺序：import 按列表顺序依次合并，最后是文件本身，后者覆盖前者。
func loadFile(path string) (fileConfig, error) {
	return loadFileDepth(path, 0, map[string]bool{})
}

func loadFileDepth(path string, depth int, seen map[string]bool) (fileConfig, error) {
	var merged fileConfig
	if depth > maxImportDepth {
		return merged, fmt.Errorf("%w: config imports nested too deeply at %s", ErrInvalidConfig, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if seen[abs] {
		return merged, fmt.Errorf("%w: import cycle at %s", ErrInvalidConfig, path)
	}
	seen[abs] = true
	defer delete(seen, abs)

	raw, err := os.ReadFile(abs)
	if err != nil {
		return merged, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return merged, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	baseDir := filepath.Dir(abs)
	for _, imp := range fc.Import {
		p := resolveImport(baseDir, imp)
		sub, err := loadFileDepth(p, depth+1, seen)
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("config: import not found, skipped", "import", imp, "path", p)
			continue
		}
		if err != nil {
			return merged, err
		}
		merged.merge(sub)
	}
	merged.merge(fc)
	merged.Import = nil
	return merged, nil
}

func resolveImport(baseDir, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// merge 用 o 中出现的字段覆盖 f
func (f *fileConfig) merge(o fileConfig) {
	pick(&f.APIURL, o.APIURL)
	pick(&f.APIToken, o.APIToken)
	pick(&f.Domain, o.Domain)
	pick(&f.DefaultGroupGUID, o.DefaultGroupGUID)
	pick(&f.CacheDir, o.CacheDir)
	pick(&f.CacheBackend, o.CacheBackend)
	pick(&f.RedisAddr, o.RedisAddr)
	pick(&f.RedisPassword, o.RedisPassword)
	pick(&f.RedisDB, o.RedisDB)
	pick(&f.Offline, o.Offline)
	pick(&f.MaxConcurrent, o.MaxConcurrent)
	pick(&f.Ordering, o.Ordering)
	pick(&f.HTTPTimeout, o.HTTPTimeout)
	pick(&f.TracingEnabled, o.TracingEnabled)
	pick(&f.OtlpGrpcEndpoint, o.OtlpGrpcEndpoint)
	pick(&f.OtlpServiceName, o.OtlpServiceName)
	pick(&f.MetricsFile, o.MetricsFile)
}

func pick[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

func (f fileConfig) apply(cfg *Config) {
	if f.APIURL != nil {
		cfg.APIURL = *f.APIURL
	}
	if f.APIToken != nil {
		cfg.APIToken = Secret(*f.APIToken)
	}
	if f.Domain != nil {
		cfg.Domain = *f.Domain
	}
	if f.DefaultGroupGUID != nil {
		cfg.DefaultGroupGUID = *f.DefaultGroupGUID
	}
	if f.CacheDir != nil {
		dir := *f.CacheDir
		cfg.CacheDir = &dir
	}
	if f.CacheBackend != nil {
		cfg.CacheBackend = strings.ToLower(*f.CacheBackend)
	}
	if f.RedisAddr != nil {
		cfg.RedisAddr = *f.RedisAddr
	}
	if f.RedisPassword != nil {
		cfg.RedisPassword = Secret(*f.RedisPassword)
	}
	if f.RedisDB != nil {
		cfg.RedisDB = *f.RedisDB
	}
	if f.Offline != nil {
		cfg.Offline = *f.Offline
	}
	if f.MaxConcurrent != nil {
		cfg.MaxConcurrent = *f.MaxConcurrent
	}
	if f.Ordering != nil {
		cfg.Ordering = strings.ToLower(*f.Ordering)
	}
	if f.HTTPTimeout != nil {
		if d, err := time.ParseDuration(*f.HTTPTimeout); err == nil {
			cfg.HTTPTimeout = d
		} else {
			slog.Warn("config: invalid http_timeout, using default", "value", *f.HTTPTimeout, "err", err)
		}
	}
	if f.TracingEnabled != nil {
		cfg.TracingEnabled = *f.TracingEnabled
	}
	if f.OtlpGrpcEndpoint != nil {
		cfg.OtlpGrpcEndpoint = *f.OtlpGrpcEndpoint
	}
	if f.OtlpServiceName != nil {
		cfg.OtlpServiceName = *f.OtlpServiceName
	}
	if f.MetricsFile != nil {
		cfg.MetricsFile = *f.MetricsFile
	}
}
