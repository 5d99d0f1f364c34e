package station

import (
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

// Availability 连接器运行可用性
type Availability string

const (
	AvailabilityOperative   Availability = "Operative"
	AvailabilityInoperative Availability = "Inoperative"
)

// QueuedTransactionEvent 离线期间排队的TransactionEvent
type QueuedTransactionEvent struct {
	Request  ocpp201.TransactionEventRequest `json:"request"`
	SeqNo    int                             `json:"seq_no"`
	QueuedAt time.Time                       `json:"queued_at"`
}

// Connector 单个连接器的全部可变状态
// 连接器0代表站点本身。所有字段由所属Station串行化访问，本结构不加锁
type Connector struct {
	ID     int `json:"id"`
	EvseID int `json:"evse_id"` // 2.0.1所属EVSE，1.6恒为0

	// 状态机
	Status16     ocpp16.ChargePointStatus    `json:"status_16,omitempty"`
	Status201    ocpp201.ConnectorStatus     `json:"status_201,omitempty"`
	Availability Availability                `json:"availability"`
	ErrorCode    ocpp16.ChargePointErrorCode `json:"error_code,omitempty"`
	Info         string                      `json:"info,omitempty"`

	// 当前交易
	TransactionStarted    bool      `json:"transaction_started"`
	TransactionID         int       `json:"transaction_id,omitempty"`        // 1.6：CSMS分配的整数
	TransactionUID        string    `json:"transaction_uid,omitempty"`       // 2.0.1：站点生成的UUID
	TransactionIdTag      string    `json:"transaction_id_tag,omitempty"`
	TransactionStart      time.Time `json:"transaction_start,omitempty"`
	TransactionMeterStart int       `json:"transaction_meter_start"` // 交易开始时的电表读数(Wh)

	// 电表
	EnergyActiveImportRegister            int `json:"energy_active_import_register"`             // 生命周期累计值(Wh)
	TransactionEnergyActiveImportRegister int `json:"transaction_energy_active_import_register"` // 本次交易累计值(Wh)

	// 授权
	AuthorizeIdTag       string `json:"authorize_id_tag,omitempty"`
	LocalAuthorizeIdTag  string `json:"local_authorize_id_tag,omitempty"`
	IdTagAuthorized      bool   `json:"id_tag_authorized"`
	IdTagLocalAuthorized bool   `json:"id_tag_local_authorized"`

	// 远程启动
	RemoteStarted bool `json:"remote_started"`
	RemoteStartID int  `json:"remote_start_id,omitempty"`

	// 预约
	ReservationID     *int      `json:"reservation_id,omitempty"`
	ReservedIdTag     string    `json:"reserved_id_tag,omitempty"`
	ReservationExpiry time.Time `json:"reservation_expiry,omitempty"`

	// 充电配置文件
	ChargingProfiles16  []ocpp16.ChargingProfile  `json:"charging_profiles_16,omitempty"`
	ChargingProfiles201 []ocpp201.ChargingProfile `json:"charging_profiles_201,omitempty"`

	// 2.0.1交易事件簿记
	TransactionSeqNo       *int                     `json:"transaction_seq_no,omitempty"` // nil表示尚未发出任何事件
	TransactionEvseSent    bool                     `json:"transaction_evse_sent"`
	TransactionIdTokenSent bool                     `json:"transaction_id_token_sent"`
	TransactionEventQueue  []QueuedTransactionEvent `json:"transaction_event_queue,omitempty"`
}

// newConnector 创建初始状态的连接器
func newConnector(id, evseID int) *Connector {
	return &Connector{
		ID:           id,
		EvseID:       evseID,
		Status16:     ocpp16.ChargePointStatusAvailable,
		Status201:    ocpp201.ConnectorStatusAvailable,
		Availability: AvailabilityOperative,
		ErrorCode:    ocpp16.ChargePointErrorCodeNoError,
	}
}

// clearTransactionLocked 清空交易相关字段，保留生命周期电表累计值
func (c *Connector) clearTransactionLocked() {
	c.TransactionStarted = false
	c.TransactionID = 0
	c.TransactionUID = ""
	c.TransactionIdTag = ""
	c.TransactionStart = time.Time{}
	c.TransactionMeterStart = 0
	c.TransactionEnergyActiveImportRegister = 0
	c.AuthorizeIdTag = ""
	c.LocalAuthorizeIdTag = ""
	c.IdTagAuthorized = false
	c.IdTagLocalAuthorized = false
	c.RemoteStarted = false
	c.RemoteStartID = 0
	c.TransactionSeqNo = nil
	c.TransactionEvseSent = false
	c.TransactionIdTokenSent = false
}

// Evse 2.0.1电气子系统，包含若干连接器
type Evse struct {
	ID           int          `json:"id"`
	Availability Availability `json:"availability"`
	ConnectorIDs []int        `json:"connector_ids"`
}
