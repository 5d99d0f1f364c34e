package message

import "fmt"

// CommandType 车队指令类型
type CommandType string

const (
	CommandConnect            CommandType = "connect"
	CommandDisconnect         CommandType = "disconnect"
	CommandStartTransaction   CommandType = "startTransaction"
	CommandStopTransaction    CommandType = "stopTransaction"
	CommandStatusNotification CommandType = "statusNotification"
)

// Command 经消息队列下发给模拟器的车队指令
// 同一站点的指令以stationId为Key落入同一分区，保证执行顺序
type Command struct {
	Type        CommandType `json:"type"`
	StationID   string      `json:"stationId"`
	ConnectorID int         `json:"connectorId,omitempty"` // startTransaction/statusNotification使用
	IdTag       string      `json:"idTag,omitempty"`       // startTransaction使用
	Status      string      `json:"status,omitempty"`      // statusNotification的目标状态
	ErrorCode   string      `json:"errorCode,omitempty"`   // statusNotification的错误码，默认NoError
}

// Validate 校验指令的完整性
func (c *Command) Validate() error {
	if c.StationID == "" {
		return fmt.Errorf("command is missing stationId")
	}
	switch c.Type {
	case CommandConnect, CommandDisconnect, CommandStopTransaction:
		return nil
	case CommandStartTransaction:
		if c.IdTag == "" {
			return fmt.Errorf("startTransaction command is missing idTag")
		}
		return nil
	case CommandStatusNotification:
		if c.Status == "" {
			return fmt.Errorf("statusNotification command is missing status")
		}
		return nil
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
}
