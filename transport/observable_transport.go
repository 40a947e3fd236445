package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hatlonely/tablegate/log/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableTransportOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称标识，用于所有观测维度
	// - Metrics: 作为指标名前缀
	// - Logging: 作为 component 字段值
	// - Tracing: 作为 span 的 component 属性
	Name string `cfg:"name" def:"tablegate_transport"`
}

type observableOptions struct {
	logger     logger.Logger
	registerer prometheus.Registerer
}

type ObservableOption func(*observableOptions)

func WithLogger(l logger.Logger) ObservableOption {
	return func(o *observableOptions) {
		o.logger = l
	}
}

// WithRegisterer 指定指标注册位置，默认 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) ObservableOption {
	return func(o *observableOptions) {
		o.registerer = r
	}
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	callCounter      *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	activeCalls      *prometheus.GaugeVec
	responseSizeHist *prometheus.HistogramVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	metrics := &ObservableMetrics{
		callCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_calls_total",
				Help: "Total number of backend calls",
			},
			[]string{"operation", "status"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_call_duration_seconds",
				Help:    "Duration of backend calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		activeCalls: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_calls",
				Help: "Number of in-flight backend calls",
			},
			[]string{"operation"},
		),
		responseSizeHist: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_response_size_bytes",
				Help:    "Size of backend response bodies",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"operation"},
		),
	}

	var err error
	if metrics.callCounter, err = register(registerer, metrics.callCounter); err != nil {
		return nil, err
	}
	if metrics.callDuration, err = register(registerer, metrics.callDuration); err != nil {
		return nil, err
	}
	if metrics.activeCalls, err = register(registerer, metrics.activeCalls); err != nil {
		return nil, err
	}
	if metrics.responseSizeHist, err = register(registerer, metrics.responseSizeHist); err != nil {
		return nil, err
	}
	return metrics, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "failed to register metrics")
	}
	return c, nil
}

// ObservableTransport 装饰器，为任何 Transport 添加观测能力
type ObservableTransport struct {
	transport Transport

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableTransportWithOptions(transport Transport, options *ObservableTransportOptions, opts ...ObservableOption) (*ObservableTransport, error) {
	if transport == nil {
		return nil, errors.New("transport is nil")
	}
	if options == nil {
		return nil, errors.New("options is nil")
	}

	o := &observableOptions{}
	for _, opt := range opts {
		opt(o)
	}

	obs := &ObservableTransport{
		transport:     transport,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging && o.logger != nil {
		obs.logger = o.logger.WithGroup("observableTransport")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Name, o.registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("transport.%s", options.Name))
	}

	return obs, nil
}

func (obs *ObservableTransport) Call(ctx context.Context, req *Request) (*RawResult, error) {
	operation := "unknown"
	if req != nil && req.Operation != "" {
		operation = req.Operation
	}
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("transport.%s", operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeCalls.WithLabelValues(operation).Inc()
		defer obs.metrics.activeCalls.WithLabelValues(operation).Dec()
	}

	result, err := obs.transport.Call(ctx, req)
	if err == nil && result == nil {
		err = errors.New("transport returned no result")
	}
	duration := time.Since(start)

	// success: 2xx，failure: 后端返回非 2xx，error: 传输层错误
	status := "success"
	if err != nil {
		status = "error"
	} else if !result.OK {
		status = "failure"
	}

	if obs.enableTracing && span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		switch {
		case err != nil:
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		case !result.OK:
			span.SetAttributes(attribute.Int("http.status_code", result.Status))
			span.SetStatus(codes.Error, "status "+strconv.Itoa(result.Status))
		default:
			span.SetAttributes(attribute.Int("http.status_code", result.Status))
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.callCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if result != nil {
			obs.metrics.responseSizeHist.WithLabelValues(operation).Observe(float64(len(result.Text)))
		}
	}

	if obs.enableLogging && obs.logger != nil {
		switch status {
		case "error":
			obs.logger.ErrorContext(ctx, "backend call failed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		case "failure":
			obs.logger.WarnContext(ctx, "backend call rejected",
				"component", obs.name,
				"operation", operation,
				"status", result.Status,
				"requestId", result.RequestID,
				"duration_ms", duration.Milliseconds(),
			)
		default:
			obs.logger.InfoContext(ctx, "backend call completed",
				"component", obs.name,
				"operation", operation,
				"status", result.Status,
				"requestId", result.RequestID,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return result, err
}
