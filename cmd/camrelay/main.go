// File: cmd/camrelay/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// camrelay relays a live JPEG stream from one websocket producer to push
// (websocket) and pull (multipart HTTP) consumers.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/momentics/hioload-camrelay/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment variables override it")
	flag.Usage = cleanenv.FUsage(flag.CommandLine.Output(), &server.Config{}, nil, flag.Usage)
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camrelay: %v\n", err)
		os.Exit(2)
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camrelay: log_level: %v\n", err)
		os.Exit(2)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.New(cfg, server.WithLogger(logger), server.WithLogLevel(level))
	if err != nil {
		logger.Fatal("init relay", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("relay exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
