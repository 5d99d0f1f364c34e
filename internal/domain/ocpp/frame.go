package ocpp

import (
	"encoding/json"
	"fmt"
)

// MessageType OCPP-J消息类型
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Frame 解析后的OCPP-J帧
// CALL:       [2, messageId, action, payload]
// CALLRESULT: [3, messageId, payload]
// CALLERROR:  [4, messageId, errorCode, errorDescription, errorDetails]
type Frame struct {
	MessageType      MessageType
	MessageID        string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ParseFrame 解析原始帧，格式错误返回FormationViolation
func ParseFrame(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, NewError(ErrorCodeFormationViolation, fmt.Sprintf("message is not a JSON array: %v", err))
	}

	if len(elements) < 3 {
		return nil, NewError(ErrorCodeFormationViolation, "message array too short")
	}

	var messageType int
	if err := json.Unmarshal(elements[0], &messageType); err != nil {
		return nil, NewError(ErrorCodeFormationViolation, "message type is not an integer")
	}

	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return nil, NewError(ErrorCodeFormationViolation, "message id is not a string")
	}
	if messageID == "" || len(messageID) > 36 {
		return nil, NewError(ErrorCodeFormationViolation, "message id must be 1..36 characters")
	}

	frame := &Frame{
		MessageType: MessageType(messageType),
		MessageID:   messageID,
	}

	switch frame.MessageType {
	case MessageTypeCall:
		if len(elements) != 4 {
			return nil, NewError(ErrorCodeFormationViolation, "CALL must have exactly 4 elements")
		}
		if err := json.Unmarshal(elements[2], &frame.Action); err != nil || frame.Action == "" {
			return nil, NewError(ErrorCodeFormationViolation, "CALL action is not a valid string")
		}
		frame.Payload = elements[3]
		return frame, nil

	case MessageTypeCallResult:
		if len(elements) != 3 {
			return nil, NewError(ErrorCodeFormationViolation, "CALLRESULT must have exactly 3 elements")
		}
		frame.Payload = elements[2]
		return frame, nil

	case MessageTypeCallError:
		if len(elements) < 4 || len(elements) > 5 {
			return nil, NewError(ErrorCodeFormationViolation, "CALLERROR must have 4 or 5 elements")
		}
		if err := json.Unmarshal(elements[2], &frame.ErrorCode); err != nil {
			return nil, NewError(ErrorCodeFormationViolation, "CALLERROR code is not a string")
		}
		if err := json.Unmarshal(elements[3], &frame.ErrorDescription); err != nil {
			return nil, NewError(ErrorCodeFormationViolation, "CALLERROR description is not a string")
		}
		if len(elements) == 5 {
			frame.ErrorDetails = elements[4]
		}
		return frame, nil

	default:
		return nil, NewError(ErrorCodeFormationViolation, fmt.Sprintf("invalid message type: %d", messageType))
	}
}

// MarshalCall 构造CALL帧
func MarshalCall(messageID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(MessageTypeCall), messageID, action, payload})
}

// MarshalCallResult 构造CALLRESULT帧
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(MessageTypeCallResult), messageID, payload})
}

// MarshalCallError 构造CALLERROR帧
func MarshalCallError(messageID string, ocppErr *Error) ([]byte, error) {
	details := ocppErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(MessageTypeCallError), messageID, string(ocppErr.Code), ocppErr.Description, details})
}

// ToError 将CALLERROR帧还原为协议错误
func (f *Frame) ToError() *Error {
	details := map[string]interface{}{}
	if len(f.ErrorDetails) > 0 {
		// 解析失败时保留原始文本
		if err := json.Unmarshal(f.ErrorDetails, &details); err != nil {
			details = map[string]interface{}{"raw": string(f.ErrorDetails)}
		}
	}
	return &Error{
		Code:        ErrorCode(f.ErrorCode),
		Description: f.ErrorDescription,
		Details:     details,
	}
}
