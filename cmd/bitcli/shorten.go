package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitcli.local/internal/app/shortlink"
	"bitcli.local/internal/app/shortlink/bitly"
	"bitcli.local/internal/app/shortlink/cache"
	"bitcli.local/internal/app/shortlink/pipeline"
	"bitcli.local/internal/platform/config"
	"bitcli.local/internal/platform/metrics"
	"bitcli.local/internal/platform/trace"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errItemsFailed 表示至少一条 URL 失败；具体错误已经逐条输出
var errItemsFailed = errors.New("some URLs could not be shortened")

var errNoInput = errors.New("no URLs given: pass them as arguments or pipe them on stdin")

func runShorten(cmd *cobra.Command, f *flags, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	cfg.Override(f.options(cmd))
	// 缓存被关闭时离线模式没有意义；只有显式 --offline 才报错
	if cfg.Offline && cfg.CacheDisabled() && !cmd.Flags().Changed("offline") {
		cfg.Offline = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogger(cfg, stderr)
	slog.Debug("config loaded",
		"api_url", cfg.APIURL,
		"api_token", cfg.APIToken,
		"domain", cfg.Domain,
		"group_guid", cfg.DefaultGroupGUID,
		"offline", cfg.Offline,
		"max_concurrent", cfg.MaxConcurrent,
		"ordering", cfg.Ordering,
	)

	ordering, err := pipeline.ParseOrdering(cfg.Ordering)
	if err != nil {
		return err
	}

	// 参数里的 URL 在开始工作之前全部校验
	urls := make([]string, 0, len(args))
	for _, arg := range args {
		u, err := shortlink.ParseLongURL(arg)
		if err != nil {
			return err
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 && isTerminal(stdin) {
		return errNoInput
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if cfg.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				slog.Warn("write metrics file failed", "path", cfg.MetricsFile, "err", err)
			}
		}()
	}

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName, version)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	}

	client, err := bitly.NewClient(bitly.Options{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken.Reveal(),
		Offline: cfg.Offline,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return err
	}

	svcOpts := shortlink.ServiceOptions{
		Domain:    cfg.Domain,
		GroupGUID: cfg.DefaultGroupGUID,
	}
	if store := openCache(ctx, cfg); store != nil {
		defer store.Close()
		svcOpts.Cache = store
	} else if cfg.Offline {
		slog.Warn("offline mode without a usable cache: every URL will fail")
	}
	svc := shortlink.NewService(client, svcOpts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var in <-chan pipeline.Item
	if len(urls) > 0 {
		in = pipeline.FromURLs(runCtx, urls)
	} else {
		in = pipeline.FromReader(runCtx, stdin)
	}

	results := pipeline.Run(runCtx, svc, in, pipeline.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Ordering:      ordering,
	})

	failed := 0
	for r := range results {
		if r.Err != nil {
			if shortlink.IsFatal(r.Err) {
				cancel()
				for range results {
				}
				return &exitError{code: exitProtocol, err: fmt.Errorf("%s: %w", r.URL, r.Err)}
			}
			fmt.Fprintf(stderr, "error: %s: %v\n", r.URL, r.Err)
			failed++
			continue
		}

		if ordering == pipeline.Unordered {
			fmt.Fprintf(stdout, "%s %s\n", r.URL, r.Bitlink.Link)
		} else {
			fmt.Fprintln(stdout, r.Bitlink.Link)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if failed > 0 {
		slog.Info("shorten finished with failures", "failed", failed)
		return &exitError{code: exitFailure, err: errItemsFailed}
	}
	return nil
}

func setupLogger(cfg config.Config, w io.Writer) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openCache 按配置打开缓存，返回 nil 表示本次运行不使用缓存
func openCache(ctx context.Context, cfg config.Config) *cache.Store {
	if cfg.CacheDisabled() {
		return nil
	}
	if cfg.CacheBackend == "redis" {
		return cache.OpenRedis(ctx, cache.DefaultName, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword.Reveal(),
			DB:       cfg.RedisDB,
		}, cache.DefaultOptions())
	}
	return cache.Open(ctx, cache.DefaultName, cfg.CacheDir, cache.DefaultOptions())
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
