// Package view 终端界面，实现 dispatch.View 和 dispatch.Form
package view

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/hatlonely/tablegate/dispatch"
	"github.com/hatlonely/tablegate/render"
	"github.com/hatlonely/tablegate/role"
)

const (
	colorSuccess = lipgloss.Color("#27ae60")
	colorError   = lipgloss.Color("#e74c3c")
)

var operationCommands = map[role.Operation]string{
	role.CreateTable:   "create <table>",
	role.InsertRow:     "insert <table> <name...> <age>",
	role.ListTables:    "list",
	role.DescribeTable: "describe <table>",
	role.DeleteTable:   "delete <table>",
	role.UpdateTable:   "update <table> [-table NEW] [-name COLUMN] [-age N]",
}

// Board 保存每个 Slot 当前的内容，并把变化输出到终端
// 终端无法撤回已经输出的内容，ClearMessage 只更新状态
type Board struct {
	mu       sync.Mutex
	out      io.Writer
	messages map[dispatch.Slot]dispatch.Message
	displays map[dispatch.Slot]render.Display

	success lipgloss.Style
	failure lipgloss.Style
	label   lipgloss.Style
	hint    lipgloss.Style
}

func NewBoard(out io.Writer) *Board {
	r := lipgloss.NewRenderer(out)
	return &Board{
		out:      out,
		messages: map[dispatch.Slot]dispatch.Message{},
		displays: map[dispatch.Slot]render.Display{},
		success:  r.NewStyle().Foreground(colorSuccess),
		failure:  r.NewStyle().Foreground(colorError),
		label:    r.NewStyle().Bold(true),
		hint:     r.NewStyle().Faint(true),
	}
}

func (b *Board) ShowMessage(slot dispatch.Slot, message dispatch.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[slot] = message

	style := b.success
	if message.Level == dispatch.LevelError {
		style = b.failure
	}
	fmt.Fprintf(b.out, "%s %s\n", b.label.Render("["+string(slot)+"]"), style.Render(message.Text))
}

func (b *Board) ClearMessage(slot dispatch.Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, slot)
}

func (b *Board) ShowDisplay(slot dispatch.Slot, display render.Display) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.displays[slot] = display
	fmt.Fprintf(b.out, "%s\n%s\n", b.label.Render("["+string(slot)+"]"), display.String())
}

// Message 返回消息位置当前的消息，已清除或从未写入时返回 false
func (b *Board) Message(slot dispatch.Slot) (dispatch.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.messages[slot]
	return m, ok
}

func (b *Board) Display(slot dispatch.Slot) (render.Display, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.displays[slot]
	return d, ok
}

// Snapshot 返回 Slot 当前的文本内容
func (b *Board) Snapshot(slot dispatch.Slot) string {
	if m, ok := b.Message(slot); ok {
		return m.Text
	}
	if d, ok := b.Display(slot); ok {
		return d.String()
	}
	return ""
}

// ShowRole 输出当前角色可以使用的命令，注册到 role.Context.OnChange
func (b *Board) ShowRole(r role.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r == role.RoleUnset {
		fmt.Fprintln(b.out, b.hint.Render("no role selected, use: role <role1|role2|role3>"))
		return
	}
	var lines []string
	for _, op := range r.Operations() {
		lines = append(lines, "  "+operationCommands[op])
	}
	fmt.Fprintf(b.out, "%s\n%s\n", b.label.Render("role: "+string(r)), strings.Join(lines, "\n"))
}

func (b *Board) Print(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out, text)
}

func (b *Board) Hint(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out, b.hint.Render(text))
}
