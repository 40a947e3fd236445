package writer

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// Options 输出器配置，Type 取值 console 或 file
type Options struct {
	Type string `cfg:"type" def:"console" validate:"omitempty,oneof=console file"`
	// console 输出目标：stdout, stderr
	Target string `cfg:"target" def:"stderr"`
	// file 输出路径
	Path string `cfg:"path"`
}

// NewWriterWithOptions 根据配置创建输出器
func NewWriterWithOptions(options *Options) (Writer, error) {
	if options == nil {
		return NewConsoleWriterWithOptions(nil)
	}

	switch strings.ToLower(options.Type) {
	case "", "console":
		return NewConsoleWriterWithOptions(&ConsoleWriterOptions{Target: options.Target})
	case "file":
		return NewFileWriterWithOptions(&FileWriterOptions{Path: options.Path})
	default:
		return nil, errors.Errorf("unsupported writer type: %s", options.Type)
	}
}
