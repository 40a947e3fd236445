package render

import (
	"html"
	"strings"

	"github.com/mattn/go-runewidth"
)

// String 终端文本形式，表格按显示宽度对齐，兼容中文等宽字符
func (d Display) String() string {
	switch d.Kind {
	case KindTable:
		return d.textTable()
	case KindPretty:
		return d.Pretty
	}
	return d.Message
}

func (d Display) textTable() string {
	widths := make([]int, len(d.Header))
	for i, h := range d.Header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range d.Rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	border := func() {
		sb.WriteByte('+')
		for _, w := range widths {
			sb.WriteString(strings.Repeat("-", w+2))
			sb.WriteByte('+')
		}
		sb.WriteByte('\n')
	}
	line := func(cells []string) {
		sb.WriteByte('|')
		for i, cell := range cells {
			sb.WriteByte(' ')
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString(" |")
		}
		sb.WriteByte('\n')
	}

	border()
	line(d.Header)
	border()
	for _, row := range d.Rows {
		line(row)
	}
	border()
	return strings.TrimSuffix(sb.String(), "\n")
}

// HTML 与网页版一致的结构，所有文本都经过转义
func (d Display) HTML() string {
	switch d.Kind {
	case KindTable:
		var sb strings.Builder
		sb.WriteString("<table><thead><tr>")
		for _, h := range d.Header {
			sb.WriteString("<th>" + html.EscapeString(h) + "</th>")
		}
		sb.WriteString("</tr></thead><tbody>")
		for _, row := range d.Rows {
			sb.WriteString("<tr>")
			for _, cell := range row {
				sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
			}
			sb.WriteString("</tr>")
		}
		sb.WriteString("</tbody></table>")
		return sb.String()
	case KindPretty:
		return "<pre>" + html.EscapeString(d.Pretty) + "</pre>"
	}
	return `<div class="message">` + html.EscapeString(d.Message) + "</div>"
}
