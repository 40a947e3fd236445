package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatlonely/tablegate/cfg"
	"github.com/hatlonely/tablegate/log"
	"github.com/hatlonely/tablegate/server"
	"github.com/pkg/errors"
)

type Options struct {
	Server server.Options `cfg:"server"`
	Log    log.Options    `cfg:"log"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var boot struct {
		Config string `cfg:"config"`
	}
	args := os.Args[1:]
	if err := cfg.Load(&cfg.Options{EnvFiles: []string{".env"}, EnvPrefix: "TABLESTORED_", Args: args}, &boot); err != nil {
		return errors.WithMessage(err, "load config failed")
	}
	var options Options
	if err := cfg.Load(&cfg.Options{
		File:      boot.Config,
		EnvFiles:  []string{".env"},
		EnvPrefix: "TABLESTORED_",
		Args:      args,
	}, &options); err != nil {
		return errors.WithMessage(err, "load config failed")
	}

	logger, err := log.NewLoggerWithOptions(&options.Log)
	if err != nil {
		return errors.WithMessage(err, "NewLoggerWithOptions failed")
	}
	defer logger.Close()

	s, err := server.NewServerWithOptions(&options.Server, server.WithLogger(logger))
	if err != nil {
		return errors.WithMessage(err, "NewServerWithOptions failed")
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("tablestored starting", "addr", options.Server.Addr, "driver", options.Server.Store.Driver)
	return s.ListenAndServe(ctx)
}
