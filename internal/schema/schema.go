package schema

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp"
	"github.com/charging-platform/station-simulator/internal/domain/protocol"
)

//go:embed assets/json-schemas/ocpp
var schemaFS embed.FS

// Validator 基于JSON Schema的PDU载荷校验器
// 同一个Schema只编译一次，编译结果按 版本/命令 缓存
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator 创建载荷校验器
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// ValidateRequest 校验指定动作的请求载荷
func (v *Validator) ValidateRequest(version string, action string, payload []byte) error {
	return v.validate(version, action+"Request", payload)
}

// ValidateResponse 校验指定动作的响应载荷
func (v *Validator) ValidateResponse(version string, action string, payload []byte) error {
	return v.validate(version, action+"Response", payload)
}

// HasSchema 判断指定动作是否有请求Schema，用于识别不支持的命令
func (v *Validator) HasSchema(version string, action string) bool {
	if _, err := schemaFS.Open(schemaPath(version, action+"Request")); err != nil {
		return false
	}
	return true
}

func (v *Validator) validate(version string, name string, payload []byte) error {
	sch, err := v.schema(version, name)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ocpp.NewError(ocpp.ErrorCodeFormationViolation, fmt.Sprintf("payload is not valid JSON: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return ocpp.NewError(ocpp.ErrorCodeFormationViolation, verr.Error())
		}
		return err
	}
	return nil
}

// schema 返回编译后的Schema，缓存未命中时从内嵌文件编译
func (v *Validator) schema(version string, name string) (*jsonschema.Schema, error) {
	path := schemaPath(version, name)

	v.mu.RLock()
	sch, ok := v.cache[path]
	v.mu.RUnlock()
	if ok {
		return sch, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.cache[path]; ok {
		return sch, nil
	}

	file, err := schemaFS.Open(path)
	if err != nil {
		return nil, ocpp.NewError(ocpp.ErrorCodeNotSupported, fmt.Sprintf("no schema for %s", name))
	}
	defer file.Close()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, file); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", path, err)
	}
	sch, err = compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}

	v.cache[path] = sch
	return sch, nil
}

func schemaPath(version string, name string) string {
	return fmt.Sprintf("assets/json-schemas/ocpp/%s/%s.json", protocol.SchemaDir(version), name)
}
