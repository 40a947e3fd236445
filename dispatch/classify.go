package dispatch

import (
	"net/http"
	"strings"

	"github.com/hatlonely/tablegate/jsonx"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/transport"
)

var fallbackMessages = map[role.Operation]string{
	role.CreateTable:   "Failed to create table",
	role.InsertRow:     "Failed to insert data",
	role.ListTables:    "Failed to list tables",
	role.DescribeTable: "Failed to describe table",
	role.DeleteTable:   "Failed to delete table",
	role.UpdateTable:   "Failed to update table",
}

// classify 非 2xx 先按状态码和 detail 分类，2xx 但响应无法解析视为传输错误
// "already exists" 是对后端文本的约定匹配，后端没有提供错误码
func classify(op role.Operation, table string, res *transport.RawResult) *Error {
	if res.OK {
		if res.DecodeErr != nil {
			return &Error{
				Kind:      KindTransportError,
				Operation: op,
				Status:    res.Status,
				Message:   "Error: " + res.DecodeErr.Error(),
				Err:       res.DecodeErr,
			}
		}
		return nil
	}

	detail := detailOf(res)
	e := &Error{Operation: op, Status: res.Status}
	switch {
	case op == role.InsertRow && res.Status == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = "Table '" + table + "' does not exist. Please create it first."
	case op == role.CreateTable && strings.Contains(detail, "already exists"):
		e.Kind = KindConflict
		e.Message = "Table '" + table + "' already exists!"
	case res.Status == http.StatusNotFound:
		e.Kind = KindNotFound
	case strings.Contains(detail, "already exists"):
		e.Kind = KindConflict
	default:
		e.Kind = KindBackendError
	}

	if e.Message == "" {
		switch {
		case detail != "":
			e.Message = detail
		case strings.TrimSpace(res.Text) != "":
			e.Message = strings.TrimSpace(res.Text)
		default:
			e.Message = fallbackMessages[op]
		}
	}
	return e
}

// detailOf 取响应体中的 detail，非字符串时输出 JSON 文本
func detailOf(res *transport.RawResult) string {
	obj, ok := res.Body.(*jsonx.Object)
	if !ok {
		return ""
	}
	v, ok := obj.Get("detail")
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	buf, err := jsonx.Marshal(v)
	if err != nil {
		return ""
	}
	return string(buf)
}

// field 取响应对象的字段，响应不是对象或者字段不存在时返回 nil
func field(body any, key string) any {
	obj, ok := body.(*jsonx.Object)
	if !ok {
		return nil
	}
	v, _ := obj.Get(key)
	return v
}
