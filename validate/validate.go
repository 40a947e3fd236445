// Package validate 表单输入校验，纯函数，不做任何 I/O
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/pkg/errors"
)

var ErrInvalidAge = errors.New("age must be a valid positive number")

var columnIdentifierRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// NonEmpty 空字符串或全是空白字符时返回 false
func NonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Age 解析十进制整数，0 合法，负数和无法解析时返回 ErrInvalidAge
func Age(s string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || age < 0 {
		return 0, ErrInvalidAge
	}
	return age, nil
}

// ColumnIdentifier 列名必须以字母开头，只包含字母、数字和下划线
func ColumnIdentifier(s string) bool {
	return columnIdentifierRegex.MatchString(s)
}

var (
	once     sync.Once
	instance *validator.Validate
)

// Struct 按 validate tag 校验请求结构体，额外注册了 identifier 和 notblank 规则
func Struct(v any) error {
	once.Do(func() {
		instance = validator.New()
		_ = instance.RegisterValidation("notblank", validators.NotBlank)
		_ = instance.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return ColumnIdentifier(fl.Field().String())
		})
	})
	return instance.Struct(v)
}
