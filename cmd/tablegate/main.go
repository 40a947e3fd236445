package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatlonely/tablegate/cfg"
	"github.com/hatlonely/tablegate/dispatch"
	"github.com/hatlonely/tablegate/log"
	"github.com/hatlonely/tablegate/log/logger"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/transport"
	"github.com/hatlonely/tablegate/view"
	"github.com/pkg/errors"
)

const envPrefix = "TABLEGATE_"

type Options struct {
	// 日志默认写到 stderr，交互输出在 stdout
	Log        log.Options                          `cfg:"log"`
	Transport  transport.HTTPTransportOptions       `cfg:"transport"`
	Observable transport.ObservableTransportOptions `cfg:"observable"`
	Dispatcher dispatch.Options                     `cfg:"dispatcher"`
	// Role 启动时的角色，为空表示未选择
	Role string `cfg:"role" validate:"omitempty,oneof=role1 role2 role3"`
}

type bootstrap struct {
	Config string `cfg:"config"`
}

func loadOptions(args []string) (*cfg.Options, *Options, error) {
	var boot bootstrap
	if err := cfg.Load(&cfg.Options{EnvFiles: []string{".env"}, EnvPrefix: envPrefix, Args: args}, &boot); err != nil {
		return nil, nil, err
	}
	loadOpts := &cfg.Options{
		File:      boot.Config,
		EnvFiles:  []string{".env"},
		EnvPrefix: envPrefix,
		Args:      args,
	}
	var options Options
	if err := cfg.Load(loadOpts, &options); err != nil {
		return nil, nil, err
	}
	return loadOpts, &options, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	loadOpts, options, err := loadOptions(os.Args[1:])
	if err != nil {
		return errors.WithMessage(err, "load config failed")
	}

	slog, err := log.NewLoggerWithOptions(&options.Log)
	if err != nil {
		return errors.WithMessage(err, "NewLoggerWithOptions failed")
	}
	defer slog.Close()

	httpTransport, err := transport.NewHTTPTransportWithOptions(&options.Transport)
	if err != nil {
		return errors.WithMessage(err, "NewHTTPTransportWithOptions failed")
	}
	tr, err := transport.NewObservableTransportWithOptions(httpTransport, &options.Observable, transport.WithLogger(slog))
	if err != nil {
		return errors.WithMessage(err, "NewObservableTransportWithOptions failed")
	}

	board := view.NewBoard(os.Stdout)
	roles := role.NewContext()
	roles.OnChange(board.ShowRole)

	d, err := dispatch.NewDispatcherWithOptions(&options.Dispatcher, roles, tr, board, dispatch.WithLogger(slog))
	if err != nil {
		return errors.WithMessage(err, "NewDispatcherWithOptions failed")
	}

	if loadOpts.File != "" {
		watcher, err := watchConfig(loadOpts, slog, d)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board.Print(fmt.Sprintf("tablegate connected to %s", httpTransport.BaseURL()))
	board.Print(helpText)
	roles.SetRole(role.Role(options.Role))

	return newREPL(ctx, os.Stdin, roles, d, board).run()
}

// watchConfig 配置文件变化时更新日志级别和消息展示时长
func watchConfig(loadOpts *cfg.Options, slog *logger.SLog, d *dispatch.Dispatcher) (*cfg.Watcher, error) {
	watcher, err := cfg.NewWatcher(loadOpts, func() any { return &Options{} }, slog)
	if err != nil {
		return nil, errors.WithMessage(err, "NewWatcher failed")
	}
	watcher.OnChange(func(object any) {
		options := object.(*Options)
		if err := slog.SetLevel(options.Log.Level); err != nil {
			slog.Warn("invalid log level", "level", options.Log.Level, "error", err.Error())
		}
		d.SetMessageTTL(options.Dispatcher.MessageTTL)
		slog.Info("config reloaded", "level", options.Log.Level, "messageTTL", options.Dispatcher.MessageTTL)
	})
	if err := watcher.Watch(); err != nil {
		return nil, errors.WithMessage(err, "watch config failed")
	}
	return watcher, nil
}
