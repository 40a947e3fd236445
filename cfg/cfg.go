package cfg

import (
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Options 配置加载选项
// 优先级从低到高：def tag < 配置文件 < .env 文件 < 环境变量 < 命令行参数
type Options struct {
	// 配置文件路径，为空时只使用其它来源
	File string `cfg:"file"`
	// .env 文件列表，文件不存在时忽略
	EnvFiles []string `cfg:"envFiles"`
	// 环境变量前缀，如 "TABLEGATE_"，去掉前缀后以 "_" 分隔层级
	EnvPrefix string `cfg:"envPrefix"`
	// 命令行参数，只处理 --key=value 和 --key value 形式，key 以 "." 分隔层级
	Args []string `cfg:"args"`
}

// Load 按 Options 加载配置到 object，object 必须是结构体指针
func Load(options *Options, object any) error {
	if options == nil {
		options = &Options{}
	}

	data, err := loadFile(options.File)
	if err != nil {
		return err
	}

	env, err := loadEnv(options.EnvFiles, options.EnvPrefix)
	if err != nil {
		return err
	}
	for key, value := range env {
		setPath(data, key, value)
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	for key, value := range parseArgs(options.Args, rv.Elem().Type()) {
		setPath(data, key, value)
	}

	if err := convertValue(data, rv.Elem()); err != nil {
		return errors.Wrap(err, "failed to convert config")
	}
	if err := SetDefaults(object); err != nil {
		return err
	}
	if err := ValidateStruct(object); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func loadFile(filename string) (map[string]any, error) {
	if filename == "" {
		return map[string]any{}, nil
	}
	decode, err := DecoderForFile(filename)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	data, err := decode(content)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// loadEnv 返回以点号分隔的小写 key，进程环境变量覆盖 .env 文件
func loadEnv(files []string, prefix string) (map[string]string, error) {
	vars := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to load env file: %s", file)
		}
		for k, v := range values {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}

	result := map[string]string{}
	if prefix == "" {
		// 没有前缀时不读取环境变量，避免 PATH 之类的变量混进配置
		return result, nil
	}
	for k, v := range vars {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(k[len(prefix):], "_", "."))
		result[key] = v
	}
	return result, nil
}

// parseArgs 目标字段是 bool 时 --key 是开关，不吃掉后面的参数
func parseArgs(args []string, t reflect.Type) map[string]string {
	result := map[string]string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || len(arg) == 2 {
			continue
		}
		key, value, ok := strings.Cut(arg[2:], "=")
		if !ok {
			// --key value 或者布尔开关 --key
			if !isBoolField(t, key) && i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				value = args[i+1]
				i++
			} else {
				value = "true"
			}
		}
		result[key] = value
	}
	return result
}

// isBoolField 按 cfg tag 沿点号路径查找字段，大小写不敏感
func isBoolField(t reflect.Type, key string) bool {
	for _, name := range strings.Split(key, ".") {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return false
		}
		found := false
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.IsExported() && strings.EqualFold(fieldName(field), name) {
				t, found = field.Type, true
				break
			}
		}
		if !found {
			return false
		}
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Bool
}
