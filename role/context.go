package role

import (
	"sync"
)

// Context 保存当前角色，由 Dispatcher 注入使用
// 每个命令在开始时读取一次快照，角色变化不影响已经发出的操作
type Context struct {
	mu       sync.RWMutex
	role     Role
	handlers []func(Role)
}

func NewContext() *Context {
	return &Context{}
}

// SetRole 无条件替换当前角色，重复设置相同角色也会触发回调
func (c *Context) SetRole(r Role) {
	c.mu.Lock()
	c.role = r
	handlers := make([]func(Role), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(r)
	}
}

func (c *Context) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// OnChange 注册角色变化回调，用于刷新界面上可见的操作
func (c *Context) OnChange(fn func(Role)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}
