package role

import (
	"github.com/pkg/errors"
)

// Role 当前用户选择的权限级别，只是前端的使用偏好，不构成安全边界
// 后端通过请求里的 username 字段再做一次检查
type Role string

const (
	RoleUnset Role = ""
	Role1     Role = "role1"
	Role2     Role = "role2"
	Role3     Role = "role3"
)

var AllRoles = []Role{Role1, Role2, Role3}

// ParseRole 只接受枚举值，空字符串表示未设置
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUnset, Role1, Role2, Role3:
		return r, nil
	}
	return RoleUnset, errors.Errorf("unknown role: %q", s)
}

func (r Role) String() string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}

// Operations 返回该角色可以执行的操作，顺序与 Operation 定义一致
func (r Role) Operations() []Operation {
	var ops []Operation
	for _, op := range AllOperations {
		if Authorized(r, op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Operation 表管理操作
type Operation int

const (
	CreateTable Operation = iota
	InsertRow
	ListTables
	DescribeTable
	DeleteTable
	UpdateTable
)

var AllOperations = []Operation{CreateTable, InsertRow, ListTables, DescribeTable, DeleteTable, UpdateTable}

var operationNames = map[Operation]string{
	CreateTable:   "CreateTable",
	InsertRow:     "InsertRow",
	ListTables:    "ListTables",
	DescribeTable: "DescribeTable",
	DeleteTable:   "DeleteTable",
	UpdateTable:   "UpdateTable",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "Unknown"
}

// 静态授权表，每个操作只对应一个角色
var requiredRoles = map[Operation]Role{
	CreateTable:   Role1,
	InsertRow:     Role1,
	ListTables:    Role2,
	DescribeTable: Role2,
	DeleteTable:   Role2,
	UpdateTable:   Role3,
}

// RequiredRole 未知操作返回 RoleUnset，任何角色都无法执行
func (op Operation) RequiredRole() Role {
	return requiredRoles[op]
}

func Authorized(r Role, op Operation) bool {
	if r == RoleUnset {
		return false
	}
	return op.RequiredRole() == r
}
