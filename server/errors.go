package server

import (
	"fmt"
	"net/http"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// HTTPError 带状态码的错误，响应体为 {"detail": Detail}
type HTTPError struct {
	Status int
	Detail string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Detail, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Detail)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func badRequest(detail string) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Detail: detail}
}

func notFound(detail string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Detail: detail}
}

func forbidden(detail string) *HTTPError {
	return &HTTPError{Status: http.StatusForbidden, Detail: detail}
}

const (
	mysqlErrTableExists  = 1050
	mysqlErrNoSuchTable  = 1146
	mysqlErrDuplicateCol = 1060
)

// dbError 把驱动错误转换成 HTTPError，无法识别的按 500 处理
func (s *Store) dbError(prefix string, table string, err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrTableExists:
			return &HTTPError{Status: http.StatusBadRequest, Detail: fmt.Sprintf("Table '%s' already exists!", table), Err: err}
		case mysqlErrNoSuchTable:
			return &HTTPError{Status: http.StatusNotFound, Detail: fmt.Sprintf("Table '%s' does not exist", table), Err: err}
		case mysqlErrDuplicateCol:
			return &HTTPError{Status: http.StatusBadRequest, Detail: prefix + ": " + me.Message, Err: err}
		}
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "already exists"):
			return &HTTPError{Status: http.StatusBadRequest, Detail: fmt.Sprintf("Table '%s' already exists!", table), Err: err}
		case strings.Contains(msg, "no such table"):
			return &HTTPError{Status: http.StatusNotFound, Detail: fmt.Sprintf("Table '%s' does not exist", table), Err: err}
		}
	}

	return &HTTPError{Status: http.StatusInternalServerError, Detail: prefix + ": " + err.Error(), Err: err}
}
