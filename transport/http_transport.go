package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hatlonely/tablegate/jsonx"
	"github.com/hatlonely/tablegate/uid"
	"github.com/pkg/errors"
)

const HeaderRequestID = "X-Request-Id"

type HTTPTransportOptions struct {
	// BaseURL 后端服务地址
	BaseURL string `cfg:"baseURL" def:"http://localhost:8000" validate:"required,url"`
	// Timeout 单次请求超时，0 表示不设置，依赖底层默认行为
	Timeout time.Duration `cfg:"timeout"`
	// Headers 每个请求附加的 header
	Headers map[string]string `cfg:"headers"`
	// RequestID 请求 ID 的生成方式，写入 X-Request-Id
	RequestID uid.UUIDOptions `cfg:"requestID"`
}

type HTTPTransport struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	ids     uid.Generator
}

type HTTPOption func(*HTTPTransport)

// WithIDGenerator 替换请求 ID 生成器
func WithIDGenerator(g uid.Generator) HTTPOption {
	return func(t *HTTPTransport) {
		t.ids = g
	}
}

func NewHTTPTransportWithOptions(options *HTTPTransportOptions, opts ...HTTPOption) (*HTTPTransport, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.BaseURL == "" {
		return nil, errors.New("baseURL is required")
	}
	t := &HTTPTransport{
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		headers: options.Headers,
		client:  &http.Client{Timeout: options.Timeout},
		ids:     uid.NewUUIDGeneratorWithOptions(&options.RequestID),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

func (t *HTTPTransport) Call(ctx context.Context, req *Request) (*RawResult, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	requestID := t.ids.Generate()
	httpReq.Header.Set(HeaderRequestID, requestID)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	result := &RawResult{
		OK:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:    resp.StatusCode,
		Text:      string(content),
		RequestID: requestID,
	}
	if result.Body, err = jsonx.Decode(content); err != nil {
		result.Body = nil
		result.DecodeErr = err
	}
	return result, nil
}
