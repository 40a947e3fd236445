package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatlonely/tablegate/log/logger"
	"github.com/hatlonely/tablegate/render"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/transport"
	"github.com/pkg/errors"
)

type Options struct {
	// MessageTTL 成功提示的展示时长，到期后自动清除
	MessageTTL time.Duration `cfg:"messageTTL" def:"3s"`
}

type dispatcherOptions struct {
	logger    logger.Logger
	afterFunc func(d time.Duration, f func())
	stateHook func(op role.Operation, state State)
}

type Option func(*dispatcherOptions)

func WithLogger(l logger.Logger) Option {
	return func(o *dispatcherOptions) {
		o.logger = l
	}
}

// WithAfterFunc 替换定时器，默认 time.AfterFunc
func WithAfterFunc(fn func(d time.Duration, f func())) Option {
	return func(o *dispatcherOptions) {
		o.afterFunc = fn
	}
}

// WithStateHook 每次状态变化时回调
func WithStateHook(fn func(op role.Operation, state State)) Option {
	return func(o *dispatcherOptions) {
		o.stateHook = fn
	}
}

// Dispatcher 把界面触发的操作映射为 授权 -> 校验 -> 请求 -> 展示
// 各个操作相互独立，同一操作可以并发执行，不做去重，结果按完成顺序写入 View
type Dispatcher struct {
	roles     *role.Context
	transport transport.Transport
	view      View

	logger    logger.Logger
	afterFunc func(d time.Duration, f func())
	stateHook func(op role.Operation, state State)

	messageTTL atomic.Int64

	// 每个消息位置的版本号，定时清除时版本已变化说明有更新的消息，不清除
	mu          sync.Mutex
	generations map[Slot]uint64

	wg sync.WaitGroup
}

func NewDispatcherWithOptions(options *Options, roles *role.Context, tr transport.Transport, view View, opts ...Option) (*Dispatcher, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if roles == nil {
		return nil, errors.New("role context is nil")
	}
	if tr == nil {
		return nil, errors.New("transport is nil")
	}
	if view == nil {
		return nil, errors.New("view is nil")
	}

	o := &dispatcherOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop{}
	}
	if o.afterFunc == nil {
		o.afterFunc = func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		}
	}

	d := &Dispatcher{
		roles:       roles,
		transport:   tr,
		view:        view,
		logger:      o.logger.WithGroup("dispatcher"),
		afterFunc:   o.afterFunc,
		stateHook:   o.stateHook,
		generations: map[Slot]uint64{},
	}
	d.SetMessageTTL(options.MessageTTL)
	return d, nil
}

// SetMessageTTL 非正数时使用默认的 3s
func (d *Dispatcher) SetMessageTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	d.messageTTL.Store(int64(ttl))
}

func (d *Dispatcher) MessageTTL() time.Duration {
	return time.Duration(d.messageTTL.Load())
}

// Wait 等待后台刷新任务完成
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) transition(op role.Operation, state State) {
	d.logger.Debug("state changed", "operation", op.String(), "state", state.String())
	if d.stateHook != nil {
		d.stateHook(op, state)
	}
}

// authorize 读取一次角色快照，后续请求都使用这个快照
func (d *Dispatcher) authorize(op role.Operation) (role.Role, *Error) {
	d.transition(op, StateAuthorizing)
	current := d.roles.Role()
	if !role.Authorized(current, op) {
		return current, &Error{
			Kind:      KindUnauthorized,
			Operation: op,
			Message:   "Error: You need " + op.RequiredRole().String() + " permission",
		}
	}
	return current, nil
}

func (d *Dispatcher) invalid(op role.Operation, message string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Operation: op, Message: message, Err: err}
}

func (d *Dispatcher) request(ctx context.Context, op role.Operation, req *transport.Request) (*transport.RawResult, *Error) {
	d.transition(op, StateRequesting)
	req.Operation = op.String()
	result, err := d.transport.Call(ctx, req)
	if err != nil {
		return nil, &Error{
			Kind:      KindTransportError,
			Operation: op,
			Message:   "Error: " + err.Error(),
			Err:       err,
		}
	}
	return result, nil
}

// showMessage 写入消息并返回这次写入的版本号
func (d *Dispatcher) showMessage(slot Slot, message Message) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generations[slot]++
	d.view.ShowMessage(slot, message)
	return d.generations[slot]
}

// flash 展示成功消息，MessageTTL 后清除
func (d *Dispatcher) flash(slot Slot, text string) {
	gen := d.showMessage(slot, Message{Level: LevelSuccess, Text: text})
	d.afterFunc(d.MessageTTL(), func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.generations[slot] == gen {
			d.view.ClearMessage(slot)
		}
	})
}

// failMessage 用于 Create/Insert/Update，错误写入消息位置
func (d *Dispatcher) failMessage(slot Slot, e *Error) (*Result, error) {
	d.transition(e.Operation, StateCompleted)
	d.showMessage(slot, Message{Level: LevelError, Text: e.Message})
	d.logFailure(e)
	return nil, e
}

// failDisplay 用于 List/Describe/Delete 以及未授权，错误写入结果位置
func (d *Dispatcher) failDisplay(slot Slot, e *Error) (*Result, error) {
	d.transition(e.Operation, StateCompleted)
	d.view.ShowDisplay(slot, render.Message(e.Message))
	d.logFailure(e)
	return nil, e
}

func (d *Dispatcher) logFailure(e *Error) {
	d.logger.Info("operation failed",
		"operation", e.Operation.String(),
		"kind", e.Kind.String(),
		"status", e.Status,
		"message", e.Message,
	)
}

func (d *Dispatcher) complete(res *Result) (*Result, error) {
	d.transition(res.Operation, StateCompleted)
	d.logger.Info("operation completed",
		"operation", res.Operation.String(),
		"role", res.Role.String(),
		"status", res.Status,
	)
	return res, nil
}
