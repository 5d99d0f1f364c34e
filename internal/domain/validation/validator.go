package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/charging-platform/station-simulator/internal/domain/protocol"
)

// Validator OCPP消息验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	// 注册自定义验证规则
	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 验证结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors ValidationErrors

	if validatorErrors, ok := err.(validator.ValidationErrors); ok {
		for _, validatorError := range validatorErrors {
			validationError := ValidationError{
				Field:   validatorError.Field(),
				Tag:     validatorError.Tag(),
				Value:   fmt.Sprintf("%v", validatorError.Value()),
				Message: getErrorMessage(validatorError),
			}
			validationErrors = append(validationErrors, validationError)
		}
	}

	return validationErrors
}

// ValidateJSON 验证JSON格式
func (v *Validator) ValidateJSON(data []byte) error {
	var temp interface{}
	return json.Unmarshal(data, &temp)
}

// ValidateAction 验证动作是否属于指定协议版本
func (v *Validator) ValidateAction(version, action string) error {
	if action == "" {
		return ValidationError{
			Field:   "action",
			Tag:     "required",
			Value:   "",
			Message: "Action is required for Call messages",
		}
	}

	var known bool
	switch protocol.NormalizeVersion(version) {
	case protocol.OCPP_VERSION_1_6:
		known = v16Actions[action]
	case protocol.OCPP_VERSION_2_0_1:
		known = v201Actions[action]
	}
	if !known {
		return ValidationError{
			Field:   "action",
			Tag:     "invalid",
			Value:   action,
			Message: fmt.Sprintf("Unknown action %q for %s", action, version),
		}
	}

	return nil
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	// 注册OCPP特定的验证规则
	validate.RegisterValidation("ocpp_datetime", validateOCPPDateTime)
	validate.RegisterValidation("ocpp_id_token", validateOCPPIdToken)
	validate.RegisterValidation("ocpp_connector_id", validateOCPPConnectorId)
	validate.RegisterValidation("ocpp_meter_value", validateOCPPMeterValue)
	validate.RegisterValidation("ocpp_status", validateOCPPStatus)
}

// validateOCPPDateTime 验证OCPP日期时间格式
func validateOCPPDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // 允许空值，required标签会处理必填验证
	}

	// OCPP使用RFC3339格式
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

// validateOCPPIdToken 验证OCPP ID令牌
// 1.6的idTag上限20字符，2.0.1的idToken上限36，结构体标签各自收紧
func validateOCPPIdToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	if len(value) > 36 {
		return false
	}

	matched, _ := regexp.MatchString(`^[a-zA-Z0-9\-_@\.]+$`, value)
	return matched
}

// validateOCPPConnectorId 验证连接器ID
func validateOCPPConnectorId(fl validator.FieldLevel) bool {
	value := fl.Field().Int()
	// 连接器ID必须大于等于0
	return value >= 0
}

// validateOCPPMeterValue 验证电表值
func validateOCPPMeterValue(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}

	// 尝试解析为数字
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// validateOCPPStatus 验证1.6连接器状态值
func validateOCPPStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	validStatuses := map[string]bool{
		"Available":     true,
		"Preparing":     true,
		"Charging":      true,
		"SuspendedEVSE": true,
		"SuspendedEV":   true,
		"Finishing":     true,
		"Reserved":      true,
		"Unavailable":   true,
		"Faulted":       true,
	}

	return validStatuses[value]
}

// v16Actions OCPP 1.6动作集合，双向都在其中
var v16Actions = map[string]bool{
	// Core Profile
	"Authorize":              true,
	"BootNotification":       true,
	"ChangeAvailability":     true,
	"ChangeConfiguration":    true,
	"ClearCache":             true,
	"DataTransfer":           true,
	"GetConfiguration":       true,
	"Heartbeat":              true,
	"MeterValues":            true,
	"RemoteStartTransaction": true,
	"RemoteStopTransaction":  true,
	"Reset":                  true,
	"StartTransaction":       true,
	"StatusNotification":     true,
	"StopTransaction":        true,
	"UnlockConnector":        true,

	// Firmware Management Profile
	"GetDiagnostics":                true,
	"DiagnosticsStatusNotification": true,
	"FirmwareStatusNotification":    true,
	"UpdateFirmware":                true,

	// Local Auth List Management Profile
	"GetLocalListVersion": true,
	"SendLocalList":       true,

	// Reservation Profile
	"CancelReservation": true,
	"ReserveNow":        true,

	// Smart Charging Profile
	"ClearChargingProfile": true,
	"GetCompositeSchedule": true,
	"SetChargingProfile":   true,

	// Trigger Message Profile
	"TriggerMessage": true,
}

// v201Actions OCPP 2.0.1动作集合，限于模拟器支持的子集
var v201Actions = map[string]bool{
	"Authorize":               true,
	"BootNotification":        true,
	"ClearCache":              true,
	"GetBaseReport":           true,
	"GetVariables":            true,
	"Heartbeat":               true,
	"NotifyReport":            true,
	"RequestStartTransaction": true,
	"RequestStopTransaction":  true,
	"Reset":                   true,
	"SetVariables":            true,
	"StatusNotification":      true,
	"TransactionEvent":        true,
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "ocpp_datetime":
		return fmt.Sprintf("Field '%s' must be a valid RFC3339 datetime", fe.Field())
	case "ocpp_id_token":
		return fmt.Sprintf("Field '%s' must be a valid ID token", fe.Field())
	case "ocpp_connector_id":
		return fmt.Sprintf("Field '%s' must be a valid connector ID (>= 0)", fe.Field())
	case "ocpp_meter_value":
		return fmt.Sprintf("Field '%s' must be a valid numeric meter value", fe.Field())
	case "ocpp_status":
		return fmt.Sprintf("Field '%s' must be a valid OCPP status", fe.Field())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

// ValidateMessageSize 验证消息大小
func (v *Validator) ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) > maxSize {
		return ValidationError{
			Field:   "message",
			Tag:     "max_size",
			Value:   fmt.Sprintf("%d bytes", len(data)),
			Message: fmt.Sprintf("Message size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize),
		}
	}
	return nil
}

// ValidateStationID 验证站点标识
func (v *Validator) ValidateStationID(stationID string) error {
	if stationID == "" {
		return ValidationError{
			Field:   "stationId",
			Tag:     "required",
			Value:   "",
			Message: "Station ID is required",
		}
	}

	if len(stationID) > 48 {
		return ValidationError{
			Field:   "stationId",
			Tag:     "max",
			Value:   stationID,
			Message: "Station ID must not exceed 48 characters",
		}
	}

	// 只允许字母数字字符和连字符
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9\-]+$`, stationID)
	if !matched {
		return ValidationError{
			Field:   "stationId",
			Tag:     "format",
			Value:   stationID,
			Message: "Station ID can only contain alphanumeric characters and hyphens",
		}
	}

	return nil
}

// ValidateProtocolVersion 验证协议版本
func (v *Validator) ValidateProtocolVersion(version string) error {
	if !protocol.IsVersionSupported(version) {
		return ValidationError{
			Field:   "protocolVersion",
			Tag:     "invalid",
			Value:   version,
			Message: "Unsupported protocol version",
		}
	}

	return nil
}
