package station

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/events"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

// HasActiveTransaction 连接器上是否有进行中的交易
func (s *Station) HasActiveTransaction(connectorID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	return ok && conn.TransactionStarted
}

// ActiveTransactionCount 进行中的交易数量
func (s *Station) ActiveTransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, conn := range s.connectors {
		if conn.TransactionStarted {
			count++
		}
	}
	return count
}

// ActiveTransactionConnectors 有进行中交易的连接器ID，升序
func (s *Station) ActiveTransactionConnectors() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.connectors))
	for id, conn := range s.connectors {
		if conn.TransactionStarted {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

// ConnectorIDByTransaction 按1.6交易ID查找连接器
func (s *Station) ConnectorIDByTransaction(transactionID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, conn := range s.connectors {
		if conn.TransactionStarted && conn.TransactionID == transactionID {
			return id, true
		}
	}
	return 0, false
}

// ConnectorIDByTransactionUID 按2.0.1交易ID查找连接器
func (s *Station) ConnectorIDByTransactionUID(transactionUID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, conn := range s.connectors {
		if conn.TransactionStarted && conn.TransactionUID == transactionUID {
			return id, true
		}
	}
	return 0, false
}

// BeginTransactionV16 记录CSMS已接受的1.6交易
func (s *Station) BeginTransactionV16(connectorID, transactionID int, idTag string, startTime time.Time) error {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok || connectorID == 0 {
		s.mu.Unlock()
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}
	if conn.TransactionStarted {
		s.mu.Unlock()
		return fmt.Errorf("connector %d already has transaction %d", connectorID, conn.TransactionID)
	}

	conn.TransactionStarted = true
	conn.TransactionID = transactionID
	conn.TransactionIdTag = idTag
	conn.TransactionStart = startTime
	conn.TransactionMeterStart = conn.EnergyActiveImportRegister
	conn.TransactionEnergyActiveImportRegister = 0
	s.stats.TransactionsStarted++

	meterStart := conn.TransactionMeterStart
	s.mu.Unlock()

	s.logger.Infof("Transaction %d started on connector %d (idTag=%s, meterStart=%d)", transactionID, connectorID, idTag, meterStart)
	s.emit(s.eventFactory.CreateTransactionStartedEvent(s.config.ID, events.TransactionInfo{
		ID:          strconv.Itoa(transactionID),
		NumericID:   &transactionID,
		StationID:   s.config.ID,
		ConnectorID: connectorID,
		IdTag:       idTag,
		Status:      events.TransactionStatusActive,
		StartTime:   startTime,
		MeterStart:  meterStart,
	}, s.metadata()))
	return nil
}

// EndTransactionV16 结束1.6交易并清空交易现场，返回本次交易输送的电量(Wh)
func (s *Station) EndTransactionV16(connectorID int, reason ocpp16.Reason, stopTime time.Time) (int, error) {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok || !conn.TransactionStarted {
		s.mu.Unlock()
		return 0, fmt.Errorf("no active transaction on connector %d", connectorID)
	}

	transactionID := conn.TransactionID
	idTag := conn.TransactionIdTag
	startTime := conn.TransactionStart
	meterStart := conn.TransactionMeterStart
	meterStop := conn.EnergyActiveImportRegister
	energy := conn.TransactionEnergyActiveImportRegister

	conn.clearTransactionLocked()
	s.stats.TransactionsStopped++
	s.stats.TotalEnergyDelivered += int64(energy)
	s.mu.Unlock()

	s.logger.Infof("Transaction %d stopped on connector %d (reason=%s, energy=%dWh)", transactionID, connectorID, reason, energy)

	stopReason := string(reason)
	s.emit(s.eventFactory.CreateTransactionStoppedEvent(s.config.ID, events.TransactionInfo{
		ID:          strconv.Itoa(transactionID),
		NumericID:   &transactionID,
		StationID:   s.config.ID,
		ConnectorID: connectorID,
		IdTag:       idTag,
		Status:      events.TransactionStatusStopped,
		StartTime:   startTime,
		EndTime:     &stopTime,
		MeterStart:  meterStart,
		MeterStop:   &meterStop,
		StopReason:  &stopReason,
	}, energy, s.metadata()))
	return energy, nil
}

// BeginTransactionV201 记录2.0.1交易并复位事件簿记
// seqNo回到未发送状态，EVSE与idToken在后续事件中重新首发
func (s *Station) BeginTransactionV201(connectorID int, transactionUID, idTag string, remoteStartID int, startTime time.Time) error {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok || connectorID == 0 {
		s.mu.Unlock()
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}
	if conn.TransactionStarted {
		s.mu.Unlock()
		return fmt.Errorf("connector %d already has transaction %s", connectorID, conn.TransactionUID)
	}

	conn.TransactionStarted = true
	conn.TransactionUID = transactionUID
	conn.TransactionIdTag = idTag
	conn.TransactionStart = startTime
	conn.TransactionMeterStart = conn.EnergyActiveImportRegister
	conn.TransactionEnergyActiveImportRegister = 0
	if remoteStartID != 0 {
		conn.RemoteStarted = true
		conn.RemoteStartID = remoteStartID
	}
	conn.TransactionSeqNo = nil
	conn.TransactionEvseSent = false
	conn.TransactionIdTokenSent = false
	s.stats.TransactionsStarted++

	evseID := conn.EvseID
	meterStart := conn.TransactionMeterStart
	s.mu.Unlock()

	s.logger.Infof("Transaction %s started on connector %d (idTag=%s, meterStart=%d)", transactionUID, connectorID, idTag, meterStart)
	s.emit(s.eventFactory.CreateTransactionStartedEvent(s.config.ID, events.TransactionInfo{
		ID:          transactionUID,
		StationID:   s.config.ID,
		ConnectorID: connectorID,
		EvseID:      evseID,
		IdTag:       idTag,
		Status:      events.TransactionStatusActive,
		StartTime:   startTime,
		MeterStart:  meterStart,
	}, s.metadata()))
	return nil
}

// EndTransactionV201 结束2.0.1交易并清空交易现场，返回交易ID与输送电量(Wh)
// 离线事件队列保留，重连后继续补发
func (s *Station) EndTransactionV201(connectorID int, reason ocpp201.StoppedReason, stopTime time.Time) (string, int, error) {
	s.mu.Lock()

	conn, ok := s.connectors[connectorID]
	if !ok || !conn.TransactionStarted {
		s.mu.Unlock()
		return "", 0, fmt.Errorf("no active transaction on connector %d", connectorID)
	}

	transactionUID := conn.TransactionUID
	idTag := conn.TransactionIdTag
	startTime := conn.TransactionStart
	meterStart := conn.TransactionMeterStart
	meterStop := conn.EnergyActiveImportRegister
	energy := conn.TransactionEnergyActiveImportRegister
	evseID := conn.EvseID

	conn.clearTransactionLocked()
	s.stats.TransactionsStopped++
	s.stats.TotalEnergyDelivered += int64(energy)
	s.mu.Unlock()

	s.logger.Infof("Transaction %s stopped on connector %d (reason=%s, energy=%dWh)", transactionUID, connectorID, reason, energy)

	stopReason := string(reason)
	s.emit(s.eventFactory.CreateTransactionStoppedEvent(s.config.ID, events.TransactionInfo{
		ID:          transactionUID,
		StationID:   s.config.ID,
		ConnectorID: connectorID,
		EvseID:      evseID,
		IdTag:       idTag,
		Status:      events.TransactionStatusStopped,
		StartTime:   startTime,
		EndTime:     &stopTime,
		MeterStart:  meterStart,
		MeterStop:   &meterStop,
		StopReason:  &stopReason,
	}, energy, s.metadata()))
	return transactionUID, energy, nil
}

// ClearTransaction 无事件回滚交易现场，StartTransaction被拒绝等场景使用
func (s *Station) ClearTransaction(connectorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.connectors[connectorID]; ok {
		conn.clearTransactionLocked()
	}
}

// NextTransactionEventSeqNo 下一个TransactionEvent序号
// 首个事件为0，之后依次加一，序号记录在连接器上
func (s *Station) NextTransactionEventSeqNo(connectorID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok || !conn.TransactionStarted {
		return 0, fmt.Errorf("no active transaction on connector %d", connectorID)
	}

	next := 0
	if conn.TransactionSeqNo != nil {
		next = *conn.TransactionSeqNo + 1
	}
	conn.TransactionSeqNo = &next
	return next, nil
}

// ShouldAttachEvse EVSE信息是否随本次事件首发，调用即置位
func (s *Station) ShouldAttachEvse(connectorID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok || conn.TransactionEvseSent {
		return false
	}
	conn.TransactionEvseSent = true
	return true
}

// ShouldAttachIdToken idToken是否随本次事件首发，调用即置位
func (s *Station) ShouldAttachIdToken(connectorID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok || conn.TransactionIdTokenSent {
		return false
	}
	conn.TransactionIdTokenSent = true
	return true
}

// QueueTransactionEvent 离线时将TransactionEvent排入连接器队列
// 队列满时拒绝新事件，保持已排队事件的序号连续
func (s *Station) QueueTransactionEvent(connectorID int, request ocpp201.TransactionEventRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	limit := s.config.OfflineQueueLimit
	if limit > 0 && len(conn.TransactionEventQueue) >= limit {
		return fmt.Errorf("transaction event queue full on connector %d (limit %d)", connectorID, limit)
	}

	conn.TransactionEventQueue = append(conn.TransactionEventQueue, QueuedTransactionEvent{
		Request:  request,
		SeqNo:    request.SeqNo,
		QueuedAt: time.Now().UTC(),
	})
	s.stats.QueuedEvents++
	return nil
}

// TakeQueuedTransactionEvents 取走连接器的全部离线事件并清空队列
func (s *Station) TakeQueuedTransactionEvents(connectorID int) []QueuedTransactionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok || len(conn.TransactionEventQueue) == 0 {
		return nil
	}

	queued := conn.TransactionEventQueue
	conn.TransactionEventQueue = nil
	return queued
}

// RestoreQueuedTransactionEvents 将未能补发的事件放回队列头部
func (s *Station) RestoreQueuedTransactionEvents(connectorID int, remaining []QueuedTransactionEvent) {
	if len(remaining) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return
	}
	conn.TransactionEventQueue = append(append([]QueuedTransactionEvent(nil), remaining...), conn.TransactionEventQueue...)
}

// QueuedTransactionEventCount 连接器上排队的离线事件数
func (s *Station) QueuedTransactionEventCount(connectorID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return 0
	}
	return len(conn.TransactionEventQueue)
}

// 电表

// AddMeterEnergy 累加电表读数，返回累加后的生命周期读数(Wh)
func (s *Station) AddMeterEnergy(connectorID, wh int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return 0, fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	conn.EnergyActiveImportRegister += wh
	if conn.TransactionStarted {
		conn.TransactionEnergyActiveImportRegister += wh
	}
	return conn.EnergyActiveImportRegister, nil
}

// MeterRegister 生命周期电表读数(Wh)
func (s *Station) MeterRegister(connectorID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return 0, false
	}
	return conn.EnergyActiveImportRegister, true
}

// TransactionEnergy 当前交易累计电量(Wh)
func (s *Station) TransactionEnergy(connectorID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok || !conn.TransactionStarted {
		return 0, false
	}
	return conn.TransactionEnergyActiveImportRegister, true
}

// 授权簿记

// BeginAuthorization 记录待确认的远程授权idTag
func (s *Station) BeginAuthorization(connectorID int, idTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.connectors[connectorID]; ok {
		conn.AuthorizeIdTag = idTag
		conn.IdTagAuthorized = false
	}
}

// CompleteAuthorization 按Authorize响应结果更新授权状态
func (s *Station) CompleteAuthorization(connectorID int, idTag string, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return
	}
	if accepted {
		conn.AuthorizeIdTag = idTag
		conn.IdTagAuthorized = true
		return
	}
	conn.AuthorizeIdTag = ""
	conn.IdTagAuthorized = false
}

// AuthorizeLocally 尝试本地白名单授权
func (s *Station) AuthorizeLocally(connectorID int, idTag string) bool {
	if !s.LocalAuthListEnabled() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, listed := s.localAuthList[idTag]; !listed {
		return false
	}
	conn, ok := s.connectors[connectorID]
	if !ok {
		return false
	}
	conn.LocalAuthorizeIdTag = idTag
	conn.IdTagLocalAuthorized = true
	return true
}

// MarkRemoteStarted 标记交易由远程指令发起
func (s *Station) MarkRemoteStarted(connectorID, remoteStartID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.connectors[connectorID]; ok {
		conn.RemoteStarted = true
		conn.RemoteStartID = remoteStartID
	}
}

// 预约

// Reserve 在连接器上登记预约
func (s *Station) Reserve(connectorID, reservationID int, idTag string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok || connectorID == 0 {
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	id := reservationID
	conn.ReservationID = &id
	conn.ReservedIdTag = idTag
	conn.ReservationExpiry = expiry
	return nil
}

// CancelReservationByID 按预约ID取消预约，返回所在连接器
func (s *Station) CancelReservationByID(reservationID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, conn := range s.connectors {
		if conn.ReservationID != nil && *conn.ReservationID == reservationID {
			conn.ReservationID = nil
			conn.ReservedIdTag = ""
			conn.ReservationExpiry = time.Time{}
			return id, true
		}
	}
	return 0, false
}

// ClearReservation 清除连接器上的预约
func (s *Station) ClearReservation(connectorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn, ok := s.connectors[connectorID]; ok {
		conn.ReservationID = nil
		conn.ReservedIdTag = ""
		conn.ReservationExpiry = time.Time{}
	}
}
