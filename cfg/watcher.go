package cfg

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/tablegate/log/logger"
	"github.com/pkg/errors"
)

// Watcher 监听配置文件变更，重新加载后回调
// newObject 每次返回一个新的结构体指针，回调拿到的是完整加载并校验过的配置
type Watcher struct {
	options   *Options
	newObject func() any
	logger    logger.Logger

	mu       sync.RWMutex
	handlers []func(object any)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	once     sync.Once
}

func NewWatcher(options *Options, newObject func() any, l logger.Logger) (*Watcher, error) {
	if options == nil || options.File == "" {
		return nil, errors.New("file path is required")
	}
	if newObject == nil {
		return nil, errors.New("newObject is required")
	}
	if l == nil {
		l = logger.Nop{}
	}
	return &Watcher{
		options:   options,
		newObject: newObject,
		logger:    l,
		done:      make(chan struct{}),
	}, nil
}

// OnChange 注册回调，只有调用 Watch 之后才会被触发
func (w *Watcher) OnChange(fn func(object any)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Watch 启动监听，多次调用只启动一次
func (w *Watcher) Watch() error {
	var initErr error
	w.once.Do(func() {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			initErr = errors.Wrap(err, "failed to create file watcher")
			return
		}
		// 监听目录而不是文件，编辑器保存时常常是 rename + create
		if err := fw.Add(filepath.Dir(w.options.File)); err != nil {
			fw.Close()
			initErr = errors.Wrap(err, "failed to add directory to watcher")
			return
		}
		w.mu.Lock()
		w.watcher = fw
		w.mu.Unlock()
		go w.loop(fw)
	})
	return initErr
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	target, _ := filepath.Abs(w.options.File)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			name, _ := filepath.Abs(event.Name)
			if name != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	object := w.newObject()
	if err := Load(w.options, object); err != nil {
		w.logger.Warn("reload config failed, keep previous config", "file", w.options.File, "error", err)
		return
	}

	w.mu.RLock()
	handlers := make([]func(any), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		handler(object)
	}
	w.logger.Info("config reloaded", "file", w.options.File, "handlers", len(handlers))
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
