package dispatch

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/hatlonely/tablegate/render"
	"github.com/hatlonely/tablegate/role"
	"github.com/hatlonely/tablegate/transport"
	"github.com/hatlonely/tablegate/validate"
)

const (
	msgEnterTableName         = "Please enter a table name!"
	msgFillAllFields          = "Please fill in all fields!"
	msgInvalidAge             = "Age must be a valid positive number!"
	msgEnterTableNameToUpdate = "Please enter a table name to update!"
	msgInvalidColumnName      = "Invalid column name. Column names must be valid SQL identifiers."
)

type CreateTableRequest struct {
	TableName string    `json:"table_name" validate:"notblank"`
	Username  role.Role `json:"username" validate:"required"`
}

type InsertRowRequest struct {
	TableName string    `json:"table_name" validate:"notblank"`
	Name      string    `json:"name" validate:"notblank"`
	Age       int       `json:"age" validate:"min=0"`
	Username  role.Role `json:"username" validate:"required"`
}

// UpdateTableRequest 可选字段为 nil 时序列化为 null，后端据此区分未修改和清空
type UpdateTableRequest struct {
	TableName    string    `json:"table_name" validate:"notblank"`
	NewTableName *string   `json:"new_table_name"`
	NewName      *string   `json:"new_name" validate:"omitempty,identifier"`
	NewAge       *int      `json:"new_age" validate:"omitempty,min=0"`
	Username     role.Role `json:"username" validate:"required"`
}

func formOf(form Form) Form {
	if form == nil {
		return emptyForm{}
	}
	return form
}

// optional 空白输入视为未填写
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (d *Dispatcher) gate(op role.Operation, v any) *Error {
	if err := validate.Struct(v); err != nil {
		return d.invalid(op, err.Error(), err)
	}
	return nil
}

// CreateTable 需要 role1
func (d *Dispatcher) CreateTable(ctx context.Context, form Form) (*Result, error) {
	const op = role.CreateTable
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotCreateResult, e)
	}

	d.transition(op, StateValidating)
	form = formOf(form)
	tableName := strings.TrimSpace(form.Get(FieldCreateTableName))
	if !validate.NonEmpty(tableName) {
		return d.failMessage(SlotCreateMessage, d.invalid(op, msgEnterTableName, nil))
	}
	body := &CreateTableRequest{TableName: tableName, Username: current}
	if e := d.gate(op, body); e != nil {
		return d.failMessage(SlotCreateMessage, e)
	}

	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodPost,
		Path:   "/create_table",
		Body:   body,
	})
	if e != nil {
		return d.failMessage(SlotCreateMessage, e)
	}
	if e := classify(op, tableName, res); e != nil {
		return d.failMessage(SlotCreateMessage, e)
	}

	message, _ := field(res.Body, "message").(string)
	if message == "" {
		message = "Table '" + tableName + "' created successfully!"
	}
	form.Clear(FieldCreateTableName)
	d.flash(SlotCreateMessage, message)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Message: message, Payload: res.Body})
}

// InsertRow 需要 role1，表不存在时提示先建表
func (d *Dispatcher) InsertRow(ctx context.Context, form Form) (*Result, error) {
	const op = role.InsertRow
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotInsertResult, e)
	}

	d.transition(op, StateValidating)
	form = formOf(form)
	tableName := strings.TrimSpace(form.Get(FieldInsertTableName))
	name := strings.TrimSpace(form.Get(FieldInsertName))
	ageText := strings.TrimSpace(form.Get(FieldInsertAge))
	if !validate.NonEmpty(tableName) || !validate.NonEmpty(name) || !validate.NonEmpty(ageText) {
		return d.failMessage(SlotInsertMessage, d.invalid(op, msgFillAllFields, nil))
	}
	age, err := validate.Age(ageText)
	if err != nil {
		return d.failMessage(SlotInsertMessage, d.invalid(op, msgInvalidAge, err))
	}
	body := &InsertRowRequest{TableName: tableName, Name: name, Age: age, Username: current}
	if e := d.gate(op, body); e != nil {
		return d.failMessage(SlotInsertMessage, e)
	}

	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodPost,
		Path:   "/insert_data",
		Body:   body,
	})
	if e != nil {
		return d.failMessage(SlotInsertMessage, e)
	}
	if e := classify(op, tableName, res); e != nil {
		return d.failMessage(SlotInsertMessage, e)
	}

	message := "Data inserted into '" + tableName + "' successfully!"
	form.Clear(FieldInsertTableName, FieldInsertName, FieldInsertAge)
	d.flash(SlotInsertMessage, message)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Message: message, Payload: res.Body})
}

// ListTables 需要 role2
func (d *Dispatcher) ListTables(ctx context.Context) (*Result, error) {
	const op = role.ListTables
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}
	d.transition(op, StateValidating)
	return d.listTables(ctx, current)
}

func (d *Dispatcher) listTables(ctx context.Context, current role.Role) (*Result, error) {
	const op = role.ListTables
	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodGet,
		Path:   "/get_all_tables",
		Query:  url.Values{"username": {string(current)}},
	})
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}
	if e := classify(op, "", res); e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}

	display := render.Render(field(res.Body, "tables"))
	d.view.ShowDisplay(SlotTablesResult, display)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Payload: res.Body, Display: display})
}

// DescribeTable 需要 role2
func (d *Dispatcher) DescribeTable(ctx context.Context, form Form) (*Result, error) {
	const op = role.DescribeTable
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}

	d.transition(op, StateValidating)
	tableName := strings.TrimSpace(formOf(form).Get(FieldTableName))
	if !validate.NonEmpty(tableName) {
		return d.failDisplay(SlotTablesResult, d.invalid(op, msgEnterTableName, nil))
	}

	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodGet,
		Path:   "/get_info_table",
		Query:  url.Values{"table_name": {tableName}, "username": {string(current)}},
	})
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}
	if e := classify(op, tableName, res); e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}

	display := render.Render(field(res.Body, "table_info"))
	d.view.ShowDisplay(SlotTablesResult, display)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Payload: res.Body, Display: display})
}

// DeleteTable 需要 role2，删除确认由调用方负责
func (d *Dispatcher) DeleteTable(ctx context.Context, form Form) (*Result, error) {
	const op = role.DeleteTable
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}

	d.transition(op, StateValidating)
	tableName := strings.TrimSpace(formOf(form).Get(FieldTableName))
	if !validate.NonEmpty(tableName) {
		return d.failDisplay(SlotTablesResult, d.invalid(op, msgEnterTableName, nil))
	}

	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodDelete,
		Path:   "/delete_table/" + url.PathEscape(tableName),
		Query:  url.Values{"username": {string(current)}},
	})
	if e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}
	if e := classify(op, tableName, res); e != nil {
		return d.failDisplay(SlotTablesResult, e)
	}

	display := render.Render(field(res.Body, "message"))
	d.view.ShowDisplay(SlotTablesResult, display)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Payload: res.Body, Display: display})
}

// UpdateTable 需要 role3，成功后在后台刷新表列表，可以通过 Wait 等待刷新完成
func (d *Dispatcher) UpdateTable(ctx context.Context, form Form) (*Result, error) {
	const op = role.UpdateTable
	current, e := d.authorize(op)
	if e != nil {
		return d.failDisplay(SlotUpdateResult, e)
	}

	d.transition(op, StateValidating)
	form = formOf(form)
	tableName := strings.TrimSpace(form.Get(FieldUpdateTableName))
	if !validate.NonEmpty(tableName) {
		return d.failMessage(SlotUpdateMessage, d.invalid(op, msgEnterTableNameToUpdate, nil))
	}
	body := &UpdateTableRequest{
		TableName:    tableName,
		NewTableName: optional(form.Get(FieldUpdateNewTableName)),
		NewName:      optional(form.Get(FieldUpdateNewName)),
		Username:     current,
	}
	if body.NewName != nil && !validate.ColumnIdentifier(*body.NewName) {
		return d.failMessage(SlotUpdateMessage, d.invalid(op, msgInvalidColumnName, nil))
	}
	if ageText := optional(form.Get(FieldUpdateNewAge)); ageText != nil {
		age, err := validate.Age(*ageText)
		if err != nil {
			return d.failMessage(SlotUpdateMessage, d.invalid(op, msgInvalidAge, err))
		}
		body.NewAge = &age
	}
	if e := d.gate(op, body); e != nil {
		return d.failMessage(SlotUpdateMessage, e)
	}

	res, e := d.request(ctx, op, &transport.Request{
		Method: http.MethodPut,
		Path:   "/update_table",
		Body:   body,
	})
	if e != nil {
		return d.failMessage(SlotUpdateMessage, e)
	}
	if e := classify(op, tableName, res); e != nil {
		return d.failMessage(SlotUpdateMessage, e)
	}

	message := "Table " + tableName + " updated successfully!"
	form.Clear(FieldUpdateTableName, FieldUpdateNewTableName, FieldUpdateNewName, FieldUpdateNewAge)
	d.flash(SlotUpdateMessage, message)
	d.refresh(ctx)
	return d.complete(&Result{Operation: op, Role: current, Status: res.Status, Message: message, Payload: res.Body})
}

// refresh 更新成功后重新拉取表列表，不等待结果
// 和用户触发的 ListTables 一样经过角色检查，role3 下只显示权限提示，不发请求
func (d *Dispatcher) refresh(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.ListTables(ctx)
	}()
}
