package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/config"
	"popreport/pkg/cachestore"
	"popreport/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Cache backend: %s", cacheBackendLine(cfg)),
		fmt.Sprintf("Cache namespace: %s", cachestore.Namespace(cfg.Cache.Version)),
		fmt.Sprintf("Cache threshold: %.0f%% of %d bytes fallback quota", cfg.Cache.MaxUsagePercent, cfg.Cache.FallbackQuota),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		sectionLine("Loader config", cfg.Loader),
	}
	if l := cfg.Loader.Value; l != nil {
		lines = append(lines,
			fmt.Sprintf("Shard host: %s (manifest v%d)", l.BaseURL, l.ManifestVersion),
			fmt.Sprintf("Currency: %s, prefetch: %s", l.Currency, listOrNone(l.Prefetch)),
			fmt.Sprintf("Loader (concurrency/window/timeout): %d / %d / %s", l.MaxConcurrent, l.RecentWindow, l.HTTPTimeout),
		)
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func cacheBackendLine(cfg *config.Config) string {
	switch cfg.Cache.Backend {
	case config.BackendFile:
		return fmt.Sprintf("file (%s)", cfg.CachePath())
	case config.BackendRedis:
		return fmt.Sprintf("redis (%s)", cfg.Redis.Host)
	default:
		return cfg.Cache.Backend
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ",")
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
