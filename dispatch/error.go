package dispatch

import (
	"github.com/hatlonely/tablegate/role"
	"github.com/pkg/errors"
)

type Kind int

const (
	KindNone Kind = iota
	// KindUnauthorized 角色不匹配，没有发出请求
	KindUnauthorized
	// KindInvalidInput 本地校验失败，没有发出请求
	KindInvalidInput
	// KindNotFound 后端返回 404
	KindNotFound
	// KindConflict 后端报告资源已存在，依据 detail 中的 "already exists" 判断
	KindConflict
	// KindBackendError 其它非 2xx 响应
	KindBackendError
	// KindTransportError 网络错误或响应无法解析
	KindTransportError
)

var kindNames = map[Kind]string{
	KindNone:           "None",
	KindUnauthorized:   "Unauthorized",
	KindInvalidInput:   "InvalidInput",
	KindNotFound:       "NotFound",
	KindConflict:       "Conflict",
	KindBackendError:   "BackendError",
	KindTransportError: "TransportError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error 操作失败，Message 是展示给用户的文本
type Error struct {
	Kind      Kind
	Operation role.Operation
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf err 为 nil 或者不是 *Error 时返回 KindNone
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
