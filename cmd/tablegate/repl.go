package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hatlonely/tablegate/dispatch"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/view"
	"github.com/pkg/errors"
)

const helpText = `commands:
  role <role1|role2|role3>
  create <table>
  insert <table> <name...> <age>
  list
  describe <table>
  delete <table>
  update <table> [-table NEW] [-name COLUMN] [-age N]
  help
  quit`

// repl 逐行读取命令，每条命令在独立的 goroutine 中执行，结果按完成顺序输出
type repl struct {
	ctx        context.Context
	roles      *role.Context
	dispatcher *dispatch.Dispatcher
	board      *view.Board
	scanner    *bufio.Scanner

	wg sync.WaitGroup
}

func newREPL(ctx context.Context, in io.Reader, roles *role.Context, d *dispatch.Dispatcher, board *view.Board) *repl {
	return &repl{
		ctx:        ctx,
		roles:      roles,
		dispatcher: d,
		board:      board,
		scanner:    bufio.NewScanner(in),
	}
}

// run 读到 quit 或输入结束后返回，返回前等待所有命令和后台刷新完成
func (r *repl) run() error {
	defer r.dispatcher.Wait()
	defer r.wg.Wait()

	for r.scanner.Scan() {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		if quit := r.execute(r.scanner.Text()); quit {
			return nil
		}
	}
	return r.scanner.Err()
}

func (r *repl) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help":
		r.board.Print(helpText)
	case "role":
		// 已发出的命令按发出时的角色执行完再切换
		r.wg.Wait()
		r.setRole(arg(args, 0))
	case "create":
		form := view.NewValues().Set(dispatch.FieldCreateTableName, arg(args, 0))
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.CreateTable(ctx, form) })
	case "insert":
		name, age := insertNameAge(args)
		form := view.NewValues().
			Set(dispatch.FieldInsertTableName, arg(args, 0)).
			Set(dispatch.FieldInsertName, name).
			Set(dispatch.FieldInsertAge, age)
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.InsertRow(ctx, form) })
	case "list":
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.ListTables(ctx) })
	case "describe":
		form := view.NewValues().Set(dispatch.FieldTableName, arg(args, 0))
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.DescribeTable(ctx, form) })
	case "delete":
		table := arg(args, 0)
		if table != "" && role.Authorized(r.roles.Role(), role.DeleteTable) && !r.confirm(fmt.Sprintf("Are you sure you want to delete table %s? [y/N]", table)) {
			r.board.Hint("cancelled")
			return false
		}
		form := view.NewValues().Set(dispatch.FieldTableName, table)
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.DeleteTable(ctx, form) })
	case "update":
		form, err := parseUpdate(args)
		if err != nil {
			r.board.Hint(err.Error())
			return false
		}
		r.spawn(func(ctx context.Context) { _, _ = r.dispatcher.UpdateTable(ctx, form) })
	default:
		r.board.Hint(fmt.Sprintf("unknown command: %s, type help for usage", fields[0]))
	}
	return false
}

func (r *repl) setRole(s string) {
	rl, err := role.ParseRole(s)
	if err != nil || rl == role.RoleUnset {
		r.board.Hint("usage: role <role1|role2|role3>")
		return
	}
	r.roles.SetRole(rl)
}

// confirm 同步读取下一行，只有 y 或 yes 视为确认
func (r *repl) confirm(prompt string) bool {
	r.board.Print(prompt)
	if !r.scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
	return answer == "y" || answer == "yes"
}

func (r *repl) spawn(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
}

// insertNameAge 最后一个参数是 age，表名和 age 之间的参数拼成 name
func insertNameAge(args []string) (string, string) {
	if len(args) < 3 {
		return arg(args, 1), arg(args, 2)
	}
	return strings.Join(args[1:len(args)-1], " "), args[len(args)-1]
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// parseUpdate 解析 update <table> [-table NEW] [-name COLUMN] [-age N]
func parseUpdate(args []string) (*view.Values, error) {
	table := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		table, args = args[0], args[1:]
	}
	form := view.NewValues().Set(dispatch.FieldUpdateTableName, table)
	if err := parseUpdateFlags(form, args); err != nil {
		return nil, err
	}
	return form, nil
}

func parseUpdateFlags(form *view.Values, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	newTable := fs.String("table", "", "new table name")
	newName := fs.String("name", "", "new column name")
	newAge := fs.String("age", "", "age for all rows")
	if err := fs.Parse(args); err != nil {
		return errors.WithMessage(err, "usage: update <table> [-table NEW] [-name COLUMN] [-age N]")
	}
	if fs.NArg() > 0 {
		return errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	form.Set(dispatch.FieldUpdateNewTableName, *newTable).
		Set(dispatch.FieldUpdateNewName, *newName).
		Set(dispatch.FieldUpdateNewAge, *newAge)
	return nil
}
