package dispatch

import (
	"github.com/hatlonely/tablegate/render"
	"github.com/hatlonely/tablegate/role"
)

// Field 表单输入项
type Field string

const (
	FieldCreateTableName    Field = "new-table-name"
	FieldInsertTableName    Field = "table-name-insert-data"
	FieldInsertName         Field = "name"
	FieldInsertAge          Field = "age"
	FieldTableName          Field = "table-name"
	FieldUpdateTableName    Field = "table-to-update"
	FieldUpdateNewTableName Field = "update-new-table-name"
	FieldUpdateNewName      Field = "new-name-col"
	FieldUpdateNewAge       Field = "new-age-col"
)

// Slot 界面上的输出位置，同一个 Slot 后到的结果覆盖先到的
type Slot string

const (
	SlotCreateMessage Slot = "create-message"
	SlotCreateResult  Slot = "create-result"
	SlotInsertMessage Slot = "insert-message"
	SlotInsertResult  Slot = "insert-result"
	SlotTablesResult  Slot = "tables-result"
	SlotUpdateMessage Slot = "update-message"
	SlotUpdateResult  Slot = "update-result"
)

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelSuccess {
		return "success"
	}
	return "error"
}

type Message struct {
	Level Level
	Text  string
}

// Form 读取和清空输入项，Get 返回原始输入，由 Dispatcher 负责 trim
type Form interface {
	Get(field Field) string
	Clear(fields ...Field)
}

// View 展示结果，实现需要支持并发调用
type View interface {
	ShowMessage(slot Slot, message Message)
	ClearMessage(slot Slot)
	ShowDisplay(slot Slot, display render.Display)
}

// State 单个操作的执行阶段
type State int

const (
	StateIdle State = iota
	StateAuthorizing
	StateValidating
	StateRequesting
	StateCompleted
)

var stateNames = []string{"Idle", "Authorizing", "Validating", "Requesting", "Completed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Result 操作成功的结果
type Result struct {
	Operation role.Operation
	Role      role.Role
	Status    int
	// Message 写入消息位置的成功提示，只有 Create/Insert/Update 有值
	Message string
	// Payload 后端返回的原始 JSON 值
	Payload any
	// Display 写入结果位置的内容，只有 List/Describe/Delete 有值
	Display render.Display
}

type emptyForm struct{}

func (emptyForm) Get(Field) string { return "" }
func (emptyForm) Clear(...Field)   {}
