// Package uid 请求 ID 生成
package uid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type Generator interface {
	Generate() string
}

type UUIDOptions struct {
	// Version UUID 版本：v4, v7
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v4 v7"`
	// WithHyphens 是否保留连字符
	WithHyphens bool `cfg:"withHyphens" def:"true"`
}

type UUIDGenerator struct {
	version     string
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{Version: "v4", WithHyphens: true}
	}
	version := options.Version
	if version == "" {
		version = "v4"
	}
	return &UUIDGenerator{version: version, withHyphens: options.WithHyphens}
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	if g.version == "v7" {
		// v7 按时间递增，便于在后端日志中排序
		u = uuid.Must(uuid.NewV7())
	} else {
		u = uuid.New()
	}
	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}

// Func 函数适配器，测试中生成固定的 ID
type Func func() string

func (f Func) Generate() string {
	return f()
}
