package log

import (
	"github.com/hatlonely/tablegate/log/logger"
)

type (
	Logger  = logger.Logger
	Options = logger.SLogOptions
)

var defaultLogger Logger

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

// Default 默认日志器，输出到 stderr
func Default() Logger {
	return defaultLogger
}

// NewLoggerWithOptions 根据配置创建日志器，options 为 nil 时使用默认配置
func NewLoggerWithOptions(options *Options) (*logger.SLog, error) {
	if options == nil {
		options = &Options{Level: "info", Format: "text"}
	}
	return logger.NewSLogWithOptions(options)
}
