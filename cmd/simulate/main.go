package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/config"
	"popreport/internal/svc"
	"popreport/pkg/dca"
)

func main() {
	var (
		configPath  = flag.String("f", "etc/pop.yaml", "the config file")
		currency    = flag.String("currency", "", "quote currency (defaults to the loader currency)")
		start       = flag.String("start", "", "first contribution date, YYYY-MM-DD")
		amount      = flag.Float64("amount", 100, "fiat amount contributed every month")
		includeExit = flag.Bool("exit", false, "also price the last observed day of every month")
		out         = flag.String("out", "", "optional path for a JSON report")
		waitTimeout = flag.Duration("wait", 5*time.Minute, "how long to wait for older months")
	)
	flag.Parse()
	logx.MustSetup(logx.LogConf{})
	logx.DisableStat()

	if *start == "" {
		fatalf("missing -start; pass the first contribution date as YYYY-MM-DD")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	sc, err := svc.Build(context.Background(), *cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer sc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := simulate(ctx, sc, options{
		Currency:    *currency,
		StartDate:   *start,
		Amount:      *amount,
		IncludeExit: *includeExit,
		WaitTimeout: *waitTimeout,
	})
	if err != nil {
		fatalf("simulate: %v", err)
	}
	for _, line := range summaryLines(report) {
		fmt.Println(line)
	}

	if *out != "" {
		if err := dca.WriteReport(*out, report); err != nil {
			fatalf("%v", err)
		}
		logx.Infof("report written to %s", *out)
	}
}

func fatalf(format string, args ...any) {
	logx.Errorf(format, args...)
	os.Exit(1)
}
