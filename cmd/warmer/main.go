package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/cli"
	"popreport/internal/config"
	"popreport/internal/svc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath  = flag.String("f", "etc/pop.yaml", "the config file")
		interval    = flag.Duration("interval", 6*time.Hour, "time between warm cycles")
		waitTimeout = flag.Duration("wait", 5*time.Minute, "how long one cycle waits for the background load")
		prefetchRaw = flag.String("prefetch", "", "comma-separated currencies overriding the configured prefetch list")
		once        = flag.Bool("once", false, "run a single cycle and exit")
	)
	flag.Parse()
	logx.DisableStat()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	cli.LogConfigSummary(cfg)

	sc, err := svc.Build(context.Background(), *cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer sc.Close()

	w := &warmer{
		svc:         sc,
		prefetch:    cfg.Loader.Value.Prefetch,
		waitTimeout: *waitTimeout,
	}
	if *prefetchRaw != "" {
		w.prefetch = parseCurrencies(*prefetchRaw)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		w.run(ctx)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.loop(ctx, *interval)
	}()
	logx.Infof("warmer: started interval=%s prefetch=%s", *interval, strings.Join(w.prefetch, ","))

	<-ctx.Done()
	logx.Info("warmer: shutdown signal received, stopping")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logx.Info("warmer: stopped cleanly")
	case <-time.After(shutdownTimeout):
		logx.Info("warmer: shutdown timeout exceeded, forcing exit")
	}
}

func parseCurrencies(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToUpper(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, exists := seen[field]; exists {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

func fatalf(format string, args ...any) {
	logx.Errorf(format, args...)
	os.Exit(1)
}
