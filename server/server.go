// Package server 表存储后端，提供 tablegate 客户端调用的 HTTP 接口
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hatlonely/tablegate/jsonx"
	"github.com/hatlonely/tablegate/log/logger"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/validate"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Addr          string        `cfg:"addr" def:":8000"`
	Store         StoreOptions  `cfg:"store"`
	EnableMetrics bool          `cfg:"enableMetrics" def:"true"`
	ReadTimeout   time.Duration `cfg:"readTimeout" def:"10s"`
	WriteTimeout  time.Duration `cfg:"writeTimeout" def:"30s"`
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Server) {
		s.registerer = r
	}
}

type Server struct {
	options    *Options
	store      *Store
	logger     logger.Logger
	registerer prometheus.Registerer
	metrics    *metrics
	handler    http.Handler
	httpServer *http.Server
}

func NewServerWithOptions(options *Options, opts ...Option) (*Server, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	store, err := NewStoreWithOptions(&options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "NewStoreWithOptions failed")
	}

	s := &Server{
		options:    options,
		store:      store,
		logger:     logger.Nop{},
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if options.EnableMetrics {
		if s.metrics, err = newMetrics(s.registerer); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	mux := http.NewServeMux()
	s.route(mux, "POST /create_table", s.createTable)
	s.route(mux, "POST /insert_data", s.insertData)
	s.route(mux, "GET /get_all_tables", s.getAllTables)
	s.route(mux, "GET /get_info_table", s.getInfoTable)
	s.route(mux, "DELETE /delete_table/{table_name}", s.deleteTable)
	s.route(mux, "PUT /update_table", s.updateTable)
	s.route(mux, "GET /healthz", s.healthz)
	if s.metrics != nil {
		if g, ok := s.registerer.(prometheus.Gatherer); ok {
			mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
		}
	}
	s.handler = CORS(mux)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe 阻塞直到 ctx 取消或监听失败
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.options.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.options.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "ListenAndServe failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Close() error {
	return s.store.Close()
}

type handlerFunc func(r *http.Request) (any, error)

func (s *Server) route(mux *http.ServeMux, pattern string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := http.StatusOK
		v, err := h(r)
		if err != nil {
			var he *HTTPError
			if !errors.As(err, &he) {
				he = &HTTPError{Status: http.StatusInternalServerError, Detail: err.Error(), Err: err}
			}
			status = he.Status
			if status >= http.StatusInternalServerError {
				s.logger.ErrorContext(r.Context(), "request failed", "route", pattern, "status", status, "error", err.Error())
			} else {
				s.logger.WarnContext(r.Context(), "request rejected", "route", pattern, "status", status, "detail", he.Detail)
			}
			v = map[string]string{"detail": he.Detail}
		} else {
			s.logger.InfoContext(r.Context(), "request completed", "route", pattern, "duration", time.Since(start))
		}

		writeJSON(w, status, v)
		if s.metrics != nil {
			s.metrics.requests.WithLabelValues(pattern, strconv.Itoa(status)).Inc()
			s.metrics.duration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	buf, err := jsonx.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"detail":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// decodeBody 请求体格式错误返回 422
func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		return &HTTPError{Status: http.StatusUnprocessableEntity, Detail: "Invalid request body: " + err.Error(), Err: err}
	}
	if err := validate.Struct(v); err != nil {
		return &HTTPError{Status: http.StatusUnprocessableEntity, Detail: err.Error(), Err: err}
	}
	return nil
}

func requireQuery(r *http.Request, keys ...string) error {
	for _, key := range keys {
		if !r.URL.Query().Has(key) {
			return &HTTPError{Status: http.StatusUnprocessableEntity, Detail: "Missing query parameter: " + key}
		}
	}
	return nil
}

var permissionDenied = map[role.Role]string{
	role.Role1: "Permission denied: Only role1 can create tables and insert data",
	role.Role2: "Permission denied: Only role2 can view and delete tables",
	role.Role3: "Permission denied: Only role3 can update tables",
}

// checkPermission username 即角色名
func checkPermission(username string, op role.Operation) error {
	if role.Authorized(role.Role(username), op) {
		return nil
	}
	return forbidden(permissionDenied[op.RequiredRole()])
}

type createTableRequest struct {
	TableName string `json:"table_name"`
	Username  string `json:"username"`
}

// insertDataRequest 缺少 age 时返回 422
type insertDataRequest struct {
	TableName string `json:"table_name"`
	Name      string `json:"name"`
	Age       *int   `json:"age" validate:"required"`
	Username  string `json:"username"`
}

func (s *Server) createTable(r *http.Request) (any, error) {
	var req createTableRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := checkPermission(req.Username, role.CreateTable); err != nil {
		return nil, err
	}
	message, err := s.store.CreateTable(r.Context(), req.TableName)
	if err != nil {
		return nil, err
	}
	return map[string]string{"message": message}, nil
}

func (s *Server) insertData(r *http.Request) (any, error) {
	var req insertDataRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := checkPermission(req.Username, role.InsertRow); err != nil {
		return nil, err
	}
	message, err := s.store.InsertRow(r.Context(), req.TableName, req.Name, *req.Age)
	if err != nil {
		return nil, err
	}
	return map[string]string{"message": message}, nil
}

func (s *Server) getAllTables(r *http.Request) (any, error) {
	if err := requireQuery(r, "username"); err != nil {
		return nil, err
	}
	if err := checkPermission(r.URL.Query().Get("username"), role.ListTables); err != nil {
		return nil, err
	}
	tables, err := s.store.ListTables(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}

func (s *Server) getInfoTable(r *http.Request) (any, error) {
	if err := requireQuery(r, "username", "table_name"); err != nil {
		return nil, err
	}
	query := r.URL.Query()
	if err := checkPermission(query.Get("username"), role.DescribeTable); err != nil {
		return nil, err
	}
	rows, err := s.store.DescribeTable(r.Context(), query.Get("table_name"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"table_info": rows}, nil
}

func (s *Server) deleteTable(r *http.Request) (any, error) {
	if err := requireQuery(r, "username"); err != nil {
		return nil, err
	}
	if err := checkPermission(r.URL.Query().Get("username"), role.DeleteTable); err != nil {
		return nil, err
	}
	message, err := s.store.DeleteTable(r.Context(), r.PathValue("table_name"))
	if err != nil {
		return nil, err
	}
	return map[string]string{"message": message}, nil
}

func (s *Server) updateTable(r *http.Request) (any, error) {
	var req UpdateTableRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := checkPermission(req.Username, role.UpdateTable); err != nil {
		return nil, err
	}
	return s.store.UpdateTable(r.Context(), &req)
}

func (s *Server) healthz(r *http.Request) (any, error) {
	return map[string]string{"status": "ok"}, nil
}
