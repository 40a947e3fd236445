package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hatlonely/tablegate/jsonx"
	"github.com/hatlonely/tablegate/render"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/transport"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeForm struct {
	mu     sync.Mutex
	values map[Field]string
	reads  int
}

func newForm(kv ...string) *fakeForm {
	f := &fakeForm{values: map[Field]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		f.values[Field(kv[i])] = kv[i+1]
	}
	return f
}

func (f *fakeForm) Get(field Field) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.values[field]
}

func (f *fakeForm) Clear(fields ...Field) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		f.values[field] = ""
	}
}

type fakeView struct {
	mu       sync.Mutex
	messages map[Slot]*Message
	displays map[Slot]render.Display
}

func newView() *fakeView {
	return &fakeView{messages: map[Slot]*Message{}, displays: map[Slot]render.Display{}}
}

func (v *fakeView) ShowMessage(slot Slot, message Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages[slot] = &message
}

func (v *fakeView) ClearMessage(slot Slot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages[slot] = nil
}

func (v *fakeView) ShowDisplay(slot Slot, display render.Display) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.displays[slot] = display
}

func (v *fakeView) message(slot Slot) *Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.messages[slot]
}

func (v *fakeView) display(slot Slot) render.Display {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.displays[slot]
}

type call struct {
	req  *transport.Request
	body map[string]any
}

// fakeBackend 按路径返回预设响应，记录所有请求
type fakeBackend struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]*transport.RawResult
	err       error
}

func newBackend() *fakeBackend {
	return &fakeBackend{responses: map[string]*transport.RawResult{}}
}

func (b *fakeBackend) on(path string, status int, body string) {
	res := &transport.RawResult{OK: status >= 200 && status < 300, Status: status, Text: body}
	if v, err := jsonx.Decode([]byte(body)); err != nil {
		res.DecodeErr = err
	} else {
		res.Body = v
	}
	b.responses[path] = res
}

func (b *fakeBackend) Call(ctx context.Context, req *transport.Request) (*transport.RawResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := call{req: req}
	if req.Body != nil {
		buf, _ := json.Marshal(req.Body)
		_ = json.Unmarshal(buf, &c.body)
	}
	b.calls = append(b.calls, c)
	if b.err != nil {
		return nil, b.err
	}
	if res, ok := b.responses[req.Path]; ok {
		return res, nil
	}
	return &transport.RawResult{OK: true, Status: 200, Body: jsonx.NewObject(), Text: "{}"}, nil
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) last() call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

// fakeTimer 保存定时任务，测试中手动触发
type fakeTimer struct {
	mu    sync.Mutex
	ttls  []time.Duration
	funcs []func()
}

func (t *fakeTimer) AfterFunc(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ttls = append(t.ttls, d)
	t.funcs = append(t.funcs, f)
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	funcs := t.funcs
	t.funcs = nil
	t.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

type fixture struct {
	roles   *role.Context
	backend *fakeBackend
	view    *fakeView
	timer   *fakeTimer
	d       *Dispatcher
}

func newFixture(r role.Role) *fixture {
	f := &fixture{
		roles:   role.NewContext(),
		backend: newBackend(),
		view:    newView(),
		timer:   &fakeTimer{},
	}
	f.roles.SetRole(r)
	d, err := NewDispatcherWithOptions(&Options{MessageTTL: 3 * time.Second}, f.roles, f.backend, f.view, WithAfterFunc(f.timer.AfterFunc))
	if err != nil {
		panic(err)
	}
	f.d = d
	return f
}

func (f *fixture) invoke(op role.Operation, form Form) (*Result, error) {
	ctx := context.Background()
	switch op {
	case role.CreateTable:
		return f.d.CreateTable(ctx, form)
	case role.InsertRow:
		return f.d.InsertRow(ctx, form)
	case role.ListTables:
		return f.d.ListTables(ctx)
	case role.DescribeTable:
		return f.d.DescribeTable(ctx, form)
	case role.DeleteTable:
		return f.d.DeleteTable(ctx, form)
	case role.UpdateTable:
		return f.d.UpdateTable(ctx, form)
	}
	panic("unknown operation")
}

func TestNewDispatcherWithOptions(t *testing.T) {
	Convey("NewDispatcherWithOptions 参数校验", t, func() {
		roles, backend, view := role.NewContext(), newBackend(), newView()
		_, err := NewDispatcherWithOptions(nil, roles, backend, view)
		So(err, ShouldNotBeNil)
		_, err = NewDispatcherWithOptions(&Options{}, nil, backend, view)
		So(err, ShouldNotBeNil)
		_, err = NewDispatcherWithOptions(&Options{}, roles, nil, view)
		So(err, ShouldNotBeNil)
		_, err = NewDispatcherWithOptions(&Options{}, roles, backend, nil)
		So(err, ShouldNotBeNil)

		d, err := NewDispatcherWithOptions(&Options{}, roles, backend, view)
		So(err, ShouldBeNil)
		So(d.MessageTTL(), ShouldEqual, 3*time.Second)
		d.SetMessageTTL(time.Second)
		So(d.MessageTTL(), ShouldEqual, time.Second)
	})
}

func TestUnauthorized(t *testing.T) {
	Convey("角色不匹配时不读输入也不发请求", t, func() {
		resultSlots := map[role.Operation]Slot{
			role.CreateTable:   SlotCreateResult,
			role.InsertRow:     SlotInsertResult,
			role.ListTables:    SlotTablesResult,
			role.DescribeTable: SlotTablesResult,
			role.DeleteTable:   SlotTablesResult,
			role.UpdateTable:   SlotUpdateResult,
		}
		for _, r := range append([]role.Role{role.RoleUnset}, role.AllRoles...) {
			for _, op := range role.AllOperations {
				if op.RequiredRole() == r {
					continue
				}
				f := newFixture(r)
				form := newForm(
					string(FieldCreateTableName), "t",
					string(FieldTableName), "t",
					string(FieldUpdateTableName), "t",
				)
				res, err := f.invoke(op, form)
				So(res, ShouldBeNil)
				So(KindOf(err), ShouldEqual, KindUnauthorized)
				So(err.Error(), ShouldEqual, "Error: You need "+string(op.RequiredRole())+" permission")
				So(f.backend.count(), ShouldEqual, 0)
				So(form.reads, ShouldEqual, 0)
				So(f.view.display(resultSlots[op]), ShouldResemble, render.Message(err.Error()))
			}
		}
	})
}

func TestValidation(t *testing.T) {
	Convey("本地校验失败不发请求", t, func() {
		Convey("CreateTable 表名为空", func() {
			for _, name := range []string{"", "   ", "\t"} {
				f := newFixture(role.Role1)
				_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), name))
				So(KindOf(err), ShouldEqual, KindInvalidInput)
				So(f.backend.count(), ShouldEqual, 0)
				So(f.view.message(SlotCreateMessage), ShouldResemble, &Message{Level: LevelError, Text: "Please enter a table name!"})
			}
		})

		Convey("InsertRow 年龄非法", func() {
			for _, age := range []string{"-1", "abc", "1.5"} {
				f := newFixture(role.Role1)
				_, err := f.d.InsertRow(context.Background(), newForm(
					string(FieldInsertTableName), "students",
					string(FieldInsertName), "alice",
					string(FieldInsertAge), age,
				))
				So(KindOf(err), ShouldEqual, KindInvalidInput)
				So(err.Error(), ShouldEqual, "Age must be a valid positive number!")
				So(f.backend.count(), ShouldEqual, 0)
			}
		})

		Convey("InsertRow 缺少字段", func() {
			f := newFixture(role.Role1)
			_, err := f.d.InsertRow(context.Background(), newForm(
				string(FieldInsertTableName), "students",
				string(FieldInsertName), "  ",
				string(FieldInsertAge), "3",
			))
			So(KindOf(err), ShouldEqual, KindInvalidInput)
			So(err.Error(), ShouldEqual, "Please fill in all fields!")
			So(f.backend.count(), ShouldEqual, 0)
		})

		Convey("InsertRow 年龄为 0 合法", func() {
			f := newFixture(role.Role1)
			res, err := f.d.InsertRow(context.Background(), newForm(
				string(FieldInsertTableName), " students ",
				string(FieldInsertName), " alice ",
				string(FieldInsertAge), "0",
			))
			So(err, ShouldBeNil)
			So(res.Message, ShouldEqual, "Data inserted into 'students' successfully!")
			So(f.backend.count(), ShouldEqual, 1)
			So(f.backend.last().req.Path, ShouldEqual, "/insert_data")
			So(f.backend.last().body, ShouldResemble, map[string]any{
				"table_name": "students", "name": "alice", "age": float64(0), "username": "role1",
			})
		})

		Convey("Describe/Delete 表名为空", func() {
			f := newFixture(role.Role2)
			_, err := f.d.DescribeTable(context.Background(), newForm())
			So(KindOf(err), ShouldEqual, KindInvalidInput)
			_, err = f.d.DeleteTable(context.Background(), nil)
			So(KindOf(err), ShouldEqual, KindInvalidInput)
			So(f.backend.count(), ShouldEqual, 0)
			So(f.view.display(SlotTablesResult), ShouldResemble, render.Message("Please enter a table name!"))
		})

		Convey("UpdateTable", func() {
			f := newFixture(role.Role3)
			_, err := f.d.UpdateTable(context.Background(), newForm(string(FieldUpdateNewAge), "5"))
			So(err.Error(), ShouldEqual, "Please enter a table name to update!")

			_, err = f.d.UpdateTable(context.Background(), newForm(
				string(FieldUpdateTableName), "t",
				string(FieldUpdateNewName), "2bad",
			))
			So(KindOf(err), ShouldEqual, KindInvalidInput)
			So(err.Error(), ShouldEqual, "Invalid column name. Column names must be valid SQL identifiers.")

			_, err = f.d.UpdateTable(context.Background(), newForm(
				string(FieldUpdateTableName), "t",
				string(FieldUpdateNewAge), "-5",
			))
			So(err.Error(), ShouldEqual, "Age must be a valid positive number!")
			So(f.backend.count(), ShouldEqual, 0)
		})
	})
}

func TestCreateTable(t *testing.T) {
	Convey("CreateTable", t, func() {
		Convey("成功后清空输入并在 TTL 后清除消息", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 200, `{"message":"Table 'students' created successfully!"}`)
			form := newForm(string(FieldCreateTableName), "students")

			res, err := f.d.CreateTable(context.Background(), form)
			So(err, ShouldBeNil)
			So(res.Message, ShouldEqual, "Table 'students' created successfully!")
			So(f.backend.last().req.Method, ShouldEqual, http.MethodPost)
			So(f.backend.last().req.Operation, ShouldEqual, "CreateTable")
			So(f.backend.last().body, ShouldResemble, map[string]any{"table_name": "students", "username": "role1"})

			So(form.values[FieldCreateTableName], ShouldEqual, "")
			So(f.view.message(SlotCreateMessage), ShouldResemble, &Message{Level: LevelSuccess, Text: "Table 'students' created successfully!"})
			So(f.timer.ttls, ShouldResemble, []time.Duration{3 * time.Second})

			f.timer.fire()
			So(f.view.message(SlotCreateMessage), ShouldBeNil)
		})

		Convey("表名去掉首尾空白后发送", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 200, `{"message":"Table 'students' created successfully!"}`)

			res, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "  students "))
			So(err, ShouldBeNil)
			So(res.Message, ShouldEqual, "Table 'students' created successfully!")
			So(f.backend.last().body, ShouldResemble, map[string]any{"table_name": "students", "username": "role1"})
		})

		Convey("表已存在", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 400, `{"detail":"Table 'students' already exists!"}`)
			form := newForm(string(FieldCreateTableName), "students")

			_, err := f.d.CreateTable(context.Background(), form)
			So(KindOf(err), ShouldEqual, KindConflict)
			So(err.Error(), ShouldEqual, "Table 'students' already exists!")
			So(form.values[FieldCreateTableName], ShouldEqual, "students")
			So(f.view.message(SlotCreateMessage).Level, ShouldEqual, LevelError)
		})

		Convey("其它错误使用后端 detail", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 400, `{"detail":"Table name must be between 1 and 63 characters"}`)
			_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "x"))
			So(KindOf(err), ShouldEqual, KindBackendError)
			So(err.Error(), ShouldEqual, "Table name must be between 1 and 63 characters")

			var de *Error
			So(errors.As(err, &de), ShouldBeTrue)
			So(de.Status, ShouldEqual, 400)
			So(de.Operation, ShouldEqual, role.CreateTable)
		})

		Convey("没有 detail 时使用默认文案", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 500, `{}`)
			_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "x"))
			So(err.Error(), ShouldEqual, "Failed to create table")
		})

		Convey("传输错误", func() {
			f := newFixture(role.Role1)
			f.backend.err = errors.New("connection refused")
			_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "x"))
			So(KindOf(err), ShouldEqual, KindTransportError)
			So(err.Error(), ShouldEqual, "Error: connection refused")
			So(errors.Cause(errors.Unwrap(err)).Error(), ShouldEqual, "connection refused")
		})

		Convey("2xx 但响应无法解析", func() {
			f := newFixture(role.Role1)
			f.backend.on("/create_table", 200, `<html>`)
			_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "x"))
			So(KindOf(err), ShouldEqual, KindTransportError)
			So(err.Error(), ShouldStartWith, "Error: ")
		})
	})
}

func TestInsertRow(t *testing.T) {
	Convey("InsertRow 表不存在", t, func() {
		f := newFixture(role.Role1)
		f.backend.on("/insert_data", 404, `{"detail":"Table 'ghost' does not exist. Please create the table first."}`)
		form := newForm(
			string(FieldInsertTableName), "ghost",
			string(FieldInsertName), "alice",
			string(FieldInsertAge), "20",
		)
		_, err := f.d.InsertRow(context.Background(), form)
		So(KindOf(err), ShouldEqual, KindNotFound)
		So(err.Error(), ShouldEqual, "Table 'ghost' does not exist. Please create it first.")
		So(f.view.message(SlotInsertMessage), ShouldResemble, &Message{Level: LevelError, Text: "Table 'ghost' does not exist. Please create it first."})
		So(form.values[FieldInsertName], ShouldEqual, "alice")
	})

	Convey("InsertRow 成功清空所有输入", t, func() {
		f := newFixture(role.Role1)
		form := newForm(
			string(FieldInsertTableName), "students",
			string(FieldInsertName), "alice",
			string(FieldInsertAge), "20",
		)
		_, err := f.d.InsertRow(context.Background(), form)
		So(err, ShouldBeNil)
		So(form.values[FieldInsertTableName], ShouldEqual, "")
		So(form.values[FieldInsertName], ShouldEqual, "")
		So(form.values[FieldInsertAge], ShouldEqual, "")
	})
}

func TestListDescribeDelete(t *testing.T) {
	Convey("role2 查询类操作", t, func() {
		Convey("ListTables 渲染表格", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_all_tables", 200, `{"tables":[{"table_name":"students","table_schema":"main","table_type":"BASE TABLE"}]}`)
			res, err := f.d.ListTables(context.Background())
			So(err, ShouldBeNil)
			So(res.Display.Kind, ShouldEqual, render.KindTable)
			So(res.Display.Header, ShouldResemble, []string{"table_name", "table_schema", "table_type"})
			So(f.view.display(SlotTablesResult), ShouldResemble, res.Display)
			So(f.backend.last().req.Query.Get("username"), ShouldEqual, "role2")
		})

		Convey("ListTables 空列表", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_all_tables", 200, `{"tables":[]}`)
			res, err := f.d.ListTables(context.Background())
			So(err, ShouldBeNil)
			So(res.Display, ShouldResemble, render.Message("No data found"))
		})

		Convey("ListTables 后端拒绝", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_all_tables", 403, `{"detail":"Permission denied: Only role2 can view and delete tables"}`)
			_, err := f.d.ListTables(context.Background())
			So(KindOf(err), ShouldEqual, KindBackendError)
			So(f.view.display(SlotTablesResult), ShouldResemble, render.Message("Permission denied: Only role2 can view and delete tables"))
		})

		Convey("DescribeTable", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_info_table", 200, `{"table_info":[{"id":1,"name":"alice","age":20}]}`)
			res, err := f.d.DescribeTable(context.Background(), newForm(string(FieldTableName), "students"))
			So(err, ShouldBeNil)
			So(res.Display.Rows, ShouldResemble, [][]string{{"1", "alice", "20"}})
			So(f.backend.last().req.Query.Get("table_name"), ShouldEqual, "students")
		})

		Convey("DescribeTable 不存在", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_info_table", 404, `{"detail":"Table 'x' does not exist"}`)
			_, err := f.d.DescribeTable(context.Background(), newForm(string(FieldTableName), "x"))
			So(KindOf(err), ShouldEqual, KindNotFound)
			So(err.Error(), ShouldEqual, "Table 'x' does not exist")
		})

		Convey("DeleteTable 转义路径", func() {
			f := newFixture(role.Role2)
			f.backend.on("/delete_table/a%2Fb", 200, `{"message":"Table 'a/b' deleted successfully"}`)
			res, err := f.d.DeleteTable(context.Background(), newForm(string(FieldTableName), "a/b"))
			So(err, ShouldBeNil)
			So(f.backend.last().req.Method, ShouldEqual, http.MethodDelete)
			So(res.Display, ShouldResemble, render.Message("Table 'a/b' deleted successfully"))
		})

		Convey("响应不是 JSON", func() {
			f := newFixture(role.Role2)
			f.backend.on("/get_all_tables", 502, `Bad Gateway`)
			_, err := f.d.ListTables(context.Background())
			So(KindOf(err), ShouldEqual, KindBackendError)
			So(err.Error(), ShouldEqual, "Bad Gateway")
		})
	})
}

func TestUpdateTable(t *testing.T) {
	Convey("UpdateTable 成功后刷新表列表", t, func() {
		f := newFixture(role.Role3)
		f.backend.on("/update_table", 200, `{"message":"Changes applied successfully!","changes":["Updated age to 5 for all records"]}`)
		f.backend.on("/get_all_tables", 200, `{"tables":[{"table_name":"t"}]}`)
		form := newForm(
			string(FieldUpdateTableName), "t",
			string(FieldUpdateNewAge), "5",
		)

		res, err := f.d.UpdateTable(context.Background(), form)
		So(err, ShouldBeNil)
		So(res.Message, ShouldEqual, "Table t updated successfully!")
		So(f.view.message(SlotUpdateMessage), ShouldResemble, &Message{Level: LevelSuccess, Text: "Table t updated successfully!"})
		So(form.values[FieldUpdateTableName], ShouldEqual, "")
		So(form.values[FieldUpdateNewAge], ShouldEqual, "")

		f.d.Wait()
		So(f.backend.count(), ShouldEqual, 1)
		So(f.backend.calls[0].req.Method, ShouldEqual, http.MethodPut)
		So(f.backend.calls[0].body, ShouldResemble, map[string]any{
			"table_name":     "t",
			"new_table_name": nil,
			"new_name":       nil,
			"new_age":        float64(5),
			"username":       "role3",
		})
		// 刷新经过角色检查，role3 不能查看表列表
		So(f.view.display(SlotTablesResult).Message, ShouldEqual, "Error: You need role2 permission")
	})

	Convey("UpdateTable 成功后刷新时角色已切换到 role2", t, func() {
		roles := role.NewContext()
		roles.SetRole(role.Role3)
		var mu sync.Mutex
		var paths []string
		tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.RawResult, error) {
			mu.Lock()
			defer mu.Unlock()
			paths = append(paths, req.Path+"?"+req.Query.Encode())
			if req.Path == "/update_table" {
				roles.SetRole(role.Role2)
				body, _ := jsonx.Decode([]byte(`{"message":"Changes applied successfully!","changes":[]}`))
				return &transport.RawResult{OK: true, Status: 200, Body: body}, nil
			}
			body, _ := jsonx.Decode([]byte(`{"tables":[{"table_name":"t"}]}`))
			return &transport.RawResult{OK: true, Status: 200, Body: body}, nil
		})
		view := newView()
		d, err := NewDispatcherWithOptions(&Options{}, roles, tr, view, WithAfterFunc(func(time.Duration, func()) {}))
		So(err, ShouldBeNil)

		_, err = d.UpdateTable(context.Background(), newForm(string(FieldUpdateTableName), "t"))
		So(err, ShouldBeNil)
		d.Wait()
		So(paths, ShouldResemble, []string{"/update_table?", "/get_all_tables?username=role2"})
		So(view.display(SlotTablesResult).Header, ShouldResemble, []string{"table_name"})
	})

	Convey("UpdateTable 失败不刷新", t, func() {
		f := newFixture(role.Role3)
		f.backend.on("/update_table", 404, `{"detail":"Source table 't' does not exist"}`)
		_, err := f.d.UpdateTable(context.Background(), newForm(
			string(FieldUpdateTableName), "t",
			string(FieldUpdateNewTableName), "t2",
			string(FieldUpdateNewName), "full_name",
		))
		f.d.Wait()
		So(KindOf(err), ShouldEqual, KindNotFound)
		So(err.Error(), ShouldEqual, "Source table 't' does not exist")
		So(f.backend.count(), ShouldEqual, 1)
		So(f.backend.last().body["new_table_name"], ShouldEqual, "t2")
		So(f.backend.last().body["new_name"], ShouldEqual, "full_name")
		So(f.backend.last().body["new_age"], ShouldBeNil)
	})

	Convey("UpdateTable 新表名已存在", t, func() {
		f := newFixture(role.Role3)
		f.backend.on("/update_table", 400, `{"detail":"Table with the new name already exists"}`)
		_, err := f.d.UpdateTable(context.Background(), newForm(
			string(FieldUpdateTableName), "t",
			string(FieldUpdateNewTableName), "t2",
		))
		So(KindOf(err), ShouldEqual, KindConflict)
		So(err.Error(), ShouldEqual, "Table with the new name already exists")
	})
}

func TestMessageLifecycle(t *testing.T) {
	Convey("新消息覆盖后旧定时器不清除", t, func() {
		f := newFixture(role.Role1)
		_, err := f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "a"))
		So(err, ShouldBeNil)
		_, err = f.d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), ""))
		So(err, ShouldNotBeNil)

		f.timer.fire()
		So(f.view.message(SlotCreateMessage), ShouldResemble, &Message{Level: LevelError, Text: "Please enter a table name!"})
	})
}

func TestStateTransitions(t *testing.T) {
	Convey("状态机", t, func() {
		var mu sync.Mutex
		var states []State
		hook := func(op role.Operation, s State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		}
		roles := role.NewContext()
		d, err := NewDispatcherWithOptions(&Options{}, roles, newBackend(), newView(), WithStateHook(hook), WithAfterFunc(func(time.Duration, func()) {}))
		So(err, ShouldBeNil)

		Convey("未授权", func() {
			_, _ = d.ListTables(context.Background())
			So(states, ShouldResemble, []State{StateAuthorizing, StateCompleted})
		})

		Convey("校验失败", func() {
			roles.SetRole(role.Role1)
			_, _ = d.CreateTable(context.Background(), newForm())
			So(states, ShouldResemble, []State{StateAuthorizing, StateValidating, StateCompleted})
		})

		Convey("成功", func() {
			roles.SetRole(role.Role1)
			_, _ = d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "t"))
			So(states, ShouldResemble, []State{StateAuthorizing, StateValidating, StateRequesting, StateCompleted})
		})

		So(StateRequesting.String(), ShouldEqual, "Requesting")
		So(State(99).String(), ShouldEqual, "Unknown")
	})
}

func TestRoleSnapshot(t *testing.T) {
	Convey("请求使用开始时的角色快照", t, func() {
		roles := role.NewContext()
		roles.SetRole(role.Role1)
		var username any
		tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.RawResult, error) {
			roles.SetRole(role.Role2)
			username = req.Body.(*CreateTableRequest).Username
			return &transport.RawResult{OK: true, Status: 200, Body: jsonx.NewObject()}, nil
		})
		d, err := NewDispatcherWithOptions(&Options{}, roles, tr, newView(), WithAfterFunc(func(time.Duration, func()) {}))
		So(err, ShouldBeNil)

		res, err := d.CreateTable(context.Background(), newForm(string(FieldCreateTableName), "t"))
		So(err, ShouldBeNil)
		So(res.Role, ShouldEqual, role.Role1)
		So(username, ShouldEqual, role.Role1)
		So(roles.Role(), ShouldEqual, role.Role2)
	})
}

func TestKindOf(t *testing.T) {
	Convey("KindOf", t, func() {
		So(KindOf(nil), ShouldEqual, KindNone)
		So(KindOf(errors.New("x")), ShouldEqual, KindNone)
		So(KindOf(errors.WithMessage(&Error{Kind: KindConflict}, "wrapped")), ShouldEqual, KindConflict)
		So(KindNotFound.String(), ShouldEqual, "NotFound")
		So(Kind(99).String(), ShouldEqual, "Unknown")
	})
}
