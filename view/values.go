package view

import (
	"sync"

	"github.com/hatlonely/tablegate/dispatch"
)

// Values 输入项集合，每条命令使用自己的 Values
type Values struct {
	mu     sync.RWMutex
	values map[dispatch.Field]string
}

func NewValues() *Values {
	return &Values{values: map[dispatch.Field]string{}}
}

func (v *Values) Set(field dispatch.Field, value string) *Values {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[field] = value
	return v
}

func (v *Values) Get(field dispatch.Field) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[field]
}

func (v *Values) Clear(fields ...dispatch.Field) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, field := range fields {
		delete(v.values, field)
	}
}
