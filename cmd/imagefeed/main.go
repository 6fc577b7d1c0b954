package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"imagefeed/internal/engine"
	"imagefeed/internal/logging"
)

func main() {
	logging.InitFromEnv()
	if len(os.Args) > 1 && os.Args[1] == "pack" {
		if err := pack(os.Args[2:]); err != nil {
			logging.L().Error("pack", "err", err)
			os.Exit(1)
		}
		return
	}

	fs := flag.NewFlagSet("imagefeed", flag.ExitOnError)
	cfg := engine.Config{}
	fs.IntVar(&cfg.GRPCPort, "grpc-port", 7070, "control server port (0 disables)")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", 9100, "prometheus /metrics port (0 disables)")
	fs.StringVar(&cfg.PipelineYml, "pipeline", "pipeline.yml", "pipeline spec file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: imagefeed [flags]\n       imagefeed pack [flags]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		logging.L().Error("bootstrap", "err", err)
		os.Exit(1)
	}
	if err := e.Run(ctx); err != nil {
		logging.L().Error("engine", "err", err)
		os.Exit(1)
	}
}
