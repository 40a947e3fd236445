package transport

import (
	"context"
	"net/url"
)

// Request 一次后端调用
type Request struct {
	// Operation 操作名，只用于日志、指标和追踪，不参与请求
	Operation string
	Method    string
	// Path 以 / 开头，调用方负责转义路径参数
	Path  string
	Query url.Values
	// Body 非 nil 时编码为 JSON 请求体
	Body any
}

// RawResult 归一化后的响应
// 非 2xx 不是错误，OK 为 false；Body 解码失败时保留 Text 和 DecodeErr
type RawResult struct {
	OK        bool
	Status    int
	Body      any
	Text      string
	DecodeErr error
	RequestID string
}

// Transport 只在网络、上下文取消、请求构造失败时返回 error
type Transport interface {
	Call(ctx context.Context, req *Request) (*RawResult, error)
}

// Func 函数适配器，测试中替代真实的 HTTP 调用
type Func func(ctx context.Context, req *Request) (*RawResult, error)

func (f Func) Call(ctx context.Context, req *Request) (*RawResult, error) {
	return f(ctx, req)
}
