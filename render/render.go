// Package render 将后端返回的 JSON 值转换成可读的展示内容
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/hatlonely/tablegate/jsonx"
)

const NoDataFound = "No data found"

type Kind int

const (
	KindMessage Kind = iota
	KindTable
	KindPretty
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindTable:
		return "table"
	case KindPretty:
		return "pretty"
	}
	return "unknown"
}

// Display 渲染结果，根据 Kind 只有对应的字段有值
type Display struct {
	Kind    Kind
	Message string
	Header  []string
	Rows    [][]string
	Pretty  string
}

func Message(s string) Display {
	return Display{Kind: KindMessage, Message: s}
}

// Render 依次匹配以下规则：
//  1. 字符串，作为消息展示
//  2. nil 或空数组，展示 "No data found"
//  3. 第一个元素是对象的非空数组，以第一条记录的 key 作为表头生成表格
//  4. 其它值，格式化为缩进 JSON
func Render(v any) Display {
	switch value := v.(type) {
	case string:
		return Message(value)
	case nil:
		return Message(NoDataFound)
	case []any:
		if len(value) == 0 {
			return Message(NoDataFound)
		}
		if header, ok := keysOf(value[0]); ok {
			return table(header, value)
		}
	case []map[string]any:
		items := make([]any, len(value))
		for i := range value {
			items[i] = value[i]
		}
		return Render(items)
	}
	return pretty(v)
}

func table(header []string, records []any) Display {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(header))
		for i, key := range header {
			if cell, ok := lookup(record, key); ok {
				row[i] = formatCell(cell)
			}
		}
		rows = append(rows, row)
	}
	return Display{Kind: KindTable, Header: header, Rows: rows}
}

// keysOf 普通 map 没有顺序，按字典序
func keysOf(v any) ([]string, bool) {
	switch record := v.(type) {
	case *jsonx.Object:
		return record.Keys(), true
	case map[string]any:
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, true
	}
	return nil, false
}

func lookup(v any, key string) (any, bool) {
	switch record := v.(type) {
	case *jsonx.Object:
		return record.Get(key)
	case map[string]any:
		cell, ok := record[key]
		return cell, ok
	}
	return nil, false
}

func formatCell(v any) string {
	switch cell := v.(type) {
	case nil:
		return "null"
	case string:
		return cell
	case bool:
		return strconv.FormatBool(cell)
	case json.Number:
		return cell.String()
	case float64:
		return strconv.FormatFloat(cell, 'f', -1, 64)
	case int:
		return strconv.Itoa(cell)
	case int64:
		return strconv.FormatInt(cell, 10)
	}
	buf, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

func pretty(v any) Display {
	buf, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return Display{Kind: KindPretty, Pretty: fmt.Sprintf("%v", v)}
	}
	return Display{Kind: KindPretty, Pretty: string(buf)}
}
