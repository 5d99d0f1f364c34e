package ocpp

import "fmt"

// ErrorCode OCPP-J CALLERROR错误码
type ErrorCode string

const (
	// 标准错误码（随CALLERROR下发）
	ErrorCodeNotImplemented              ErrorCode = "NotImplemented"
	ErrorCodeNotSupported                ErrorCode = "NotSupported"
	ErrorCodeInternalError               ErrorCode = "InternalError"
	ErrorCodeSecurityError               ErrorCode = "SecurityError"
	ErrorCodeFormationViolation          ErrorCode = "FormationViolation"
	ErrorCodePropertyConstraintViolation ErrorCode = "PropertyConstraintViolation"
	ErrorCodeGenericError                ErrorCode = "GenericError"

	// 本地错误码（不上线，仅用于请求等待方）
	ErrorCodeTimeout   ErrorCode = "Timeout"
	ErrorCodeCancelled ErrorCode = "Cancelled"
)

// Error 协议级错误，路由器将其转换为CALLERROR帧
type Error struct {
	Code        ErrorCode              `json:"errorCode"`
	Description string                 `json:"errorDescription"`
	Details     map[string]interface{} `json:"errorDetails,omitempty"`
}

// Error 实现error接口
func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Description, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError 创建协议错误
func NewError(code ErrorCode, description string) *Error {
	return &Error{
		Code:        code,
		Description: description,
	}
}

// NewErrorWithDetails 创建带详情的协议错误
func NewErrorWithDetails(code ErrorCode, description string, details map[string]interface{}) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Details:     details,
	}
}

// AsError 将任意错误规整为协议错误；非协议错误一律归为InternalError
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if ocppErr, ok := err.(*Error); ok {
		return ocppErr
	}
	return &Error{
		Code:        ErrorCodeInternalError,
		Description: err.Error(),
	}
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	if ocppErr, ok := err.(*Error); ok {
		return ocppErr.Code == ErrorCodeTimeout
	}
	return false
}
