package cfg

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 将配置文件内容解码为 map 结构
type Decoder func(data []byte) (map[string]any, error)

// DecoderForFile 根据文件后缀选择解码器：
//
//	.json -> JSON
//	.yaml/.yml -> YAML
//	.toml -> TOML
//	.ini -> INI
func DecoderForFile(filename string) (Decoder, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		return DecodeJSON, nil
	case ".yaml", ".yml":
		return DecodeYAML, nil
	case ".toml":
		return DecodeTOML, nil
	case ".ini":
		return DecodeINI, nil
	default:
		return nil, errors.Errorf("unsupported file extension: %s", ext)
	}
}

func DecodeJSON(data []byte) (map[string]any, error) {
	result := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON")
	}
	return result, nil
}

func DecodeYAML(data []byte) (map[string]any, error) {
	result := map[string]any{}
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode YAML")
	}
	return result, nil
}

func DecodeTOML(data []byte) (map[string]any, error) {
	result := map[string]any{}
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode TOML")
	}
	return result, nil
}

// DecodeINI section 作为一级 key，默认 section 的键放在顶层
func DecodeINI(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			target = map[string]any{}
			setPath(result, name, target)
		}
		for _, key := range section.Keys() {
			target[key.Name()] = parseScalar(key.String())
		}
	}
	return result, nil
}

// parseScalar INI 的值都是字符串，尽量还原成 bool/int/float
func parseScalar(value string) any {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
