package station

import (
	"fmt"
	"time"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
)

// ValidateChargingProfileV16 校验1.6充电配置文件的结构不变量
// 用途与连接器/交易的约束由SetChargingProfileV16在站点上下文中校验
func ValidateChargingProfileV16(p *ocpp16.ChargingProfile, now time.Time) error {
	if p.ChargingProfileKind == ocpp16.ChargingProfileKindRecurring && p.RecurrencyKind == nil {
		return fmt.Errorf("recurring profile %d requires recurrencyKind", p.ChargingProfileId)
	}
	if p.ChargingProfileKind != ocpp16.ChargingProfileKindRecurring && p.RecurrencyKind != nil {
		return fmt.Errorf("profile %d has recurrencyKind but kind is %s", p.ChargingProfileId, p.ChargingProfileKind)
	}
	if p.ValidFrom != nil && p.ValidTo != nil && !p.ValidFrom.Time.Before(p.ValidTo.Time) {
		return fmt.Errorf("profile %d validFrom must precede validTo", p.ChargingProfileId)
	}
	if p.ValidTo != nil && p.ValidTo.Time.Before(now) {
		return fmt.Errorf("profile %d already expired", p.ChargingProfileId)
	}
	return validateScheduleV16(p.ChargingProfileId, &p.ChargingSchedule)
}

func validateScheduleV16(profileID int, s *ocpp16.ChargingSchedule) error {
	if s.Duration != nil && *s.Duration <= 0 {
		return fmt.Errorf("profile %d schedule duration must be positive", profileID)
	}
	if s.MinChargingRate != nil && *s.MinChargingRate < 0 {
		return fmt.Errorf("profile %d minChargingRate must be non-negative", profileID)
	}
	if len(s.ChargingSchedulePeriod) == 0 {
		return fmt.Errorf("profile %d schedule requires at least one period", profileID)
	}
	lastStart := -1
	for i, period := range s.ChargingSchedulePeriod {
		if period.StartPeriod < 0 {
			return fmt.Errorf("profile %d period %d startPeriod must be non-negative", profileID, i)
		}
		if period.StartPeriod <= lastStart {
			return fmt.Errorf("profile %d period %d startPeriod must be strictly increasing", profileID, i)
		}
		if period.Limit <= 0 {
			return fmt.Errorf("profile %d period %d limit must be positive", profileID, i)
		}
		if period.NumberPhases != nil && (*period.NumberPhases < 1 || *period.NumberPhases > 3) {
			return fmt.Errorf("profile %d period %d numberPhases must be in 1..3", profileID, i)
		}
		lastStart = period.StartPeriod
	}
	return nil
}

// ValidateChargingProfileV201 校验2.0.1充电配置文件的结构不变量
func ValidateChargingProfileV201(p *ocpp201.ChargingProfile, now time.Time) error {
	if p.StackLevel < 0 || p.StackLevel > 9 {
		return fmt.Errorf("profile %d stackLevel must be in 0..9", p.Id)
	}
	if p.ChargingProfileKind == ocpp201.ChargingProfileKindRecurring && p.RecurrencyKind == nil {
		return fmt.Errorf("recurring profile %d requires recurrencyKind", p.Id)
	}
	if p.ChargingProfileKind != ocpp201.ChargingProfileKindRecurring && p.RecurrencyKind != nil {
		return fmt.Errorf("profile %d has recurrencyKind but kind is %s", p.Id, p.ChargingProfileKind)
	}
	if p.ValidFrom != nil && p.ValidTo != nil && !p.ValidFrom.Time.Before(p.ValidTo.Time) {
		return fmt.Errorf("profile %d validFrom must precede validTo", p.Id)
	}
	if p.ValidTo != nil && p.ValidTo.Time.Before(now) {
		return fmt.Errorf("profile %d already expired", p.Id)
	}
	if len(p.ChargingSchedule) == 0 {
		return fmt.Errorf("profile %d requires at least one schedule", p.Id)
	}
	for _, schedule := range p.ChargingSchedule {
		if err := validateScheduleV201(p.Id, &schedule); err != nil {
			return err
		}
	}
	return nil
}

func validateScheduleV201(profileID int, s *ocpp201.ChargingSchedule) error {
	if s.Id <= 0 {
		return fmt.Errorf("profile %d schedule id must be positive", profileID)
	}
	if s.Duration != nil && *s.Duration <= 0 {
		return fmt.Errorf("profile %d schedule %d duration must be positive", profileID, s.Id)
	}
	if s.MinChargingRate != nil && *s.MinChargingRate < 0 {
		return fmt.Errorf("profile %d schedule %d minChargingRate must be non-negative", profileID, s.Id)
	}
	if len(s.ChargingSchedulePeriod) == 0 {
		return fmt.Errorf("profile %d schedule %d requires at least one period", profileID, s.Id)
	}
	lastStart := -1
	for i, period := range s.ChargingSchedulePeriod {
		if period.StartPeriod < 0 {
			return fmt.Errorf("profile %d schedule %d period %d startPeriod must be non-negative", profileID, s.Id, i)
		}
		if period.StartPeriod <= lastStart {
			return fmt.Errorf("profile %d schedule %d period %d startPeriod must be strictly increasing", profileID, s.Id, i)
		}
		if period.Limit <= 0 {
			return fmt.Errorf("profile %d schedule %d period %d limit must be positive", profileID, s.Id, i)
		}
		if period.NumberPhases != nil && (*period.NumberPhases < 1 || *period.NumberPhases > 3) {
			return fmt.Errorf("profile %d schedule %d period %d numberPhases must be in 1..3", profileID, s.Id, i)
		}
		if period.PhaseToUse != nil {
			if period.NumberPhases == nil || *period.PhaseToUse > *period.NumberPhases {
				return fmt.Errorf("profile %d schedule %d period %d phaseToUse exceeds numberPhases", profileID, s.Id, i)
			}
		}
		lastStart = period.StartPeriod
	}
	return nil
}

// matchesClearCriteria 判断配置文件是否命中ClearChargingProfile的匹配条件
// 命中条件（任一成立）：
//  1. id与请求id相等
//  2. 请求无purpose过滤且stackLevel相等
//  3. 配置文件stackLevel为0且purpose相等
//  4. stackLevel与purpose同时相等
func matchesClearCriteria(p *ocpp16.ChargingProfile, req *ocpp16.ClearChargingProfileRequest) bool {
	if req.Id != nil && p.ChargingProfileId == *req.Id {
		return true
	}
	if req.ChargingProfilePurpose == nil && req.StackLevel != nil && p.StackLevel == *req.StackLevel {
		return true
	}
	if p.StackLevel == 0 && req.ChargingProfilePurpose != nil && p.ChargingProfilePurpose == *req.ChargingProfilePurpose {
		return true
	}
	if req.StackLevel != nil && req.ChargingProfilePurpose != nil &&
		p.StackLevel == *req.StackLevel && p.ChargingProfilePurpose == *req.ChargingProfilePurpose {
		return true
	}
	return false
}

// SetChargingProfileV16 在连接器上安装或替换1.6充电配置文件
// 同ID的已存在配置文件被整体替换
func (s *Station) SetChargingProfileV16(connectorID int, profile ocpp16.ChargingProfile) error {
	if err := ValidateChargingProfileV16(&profile, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	switch profile.ChargingProfilePurpose {
	case ocpp16.ChargingProfilePurposeChargePointMaxProfile:
		if connectorID != 0 {
			return fmt.Errorf("ChargePointMaxProfile must target connector 0, got %d", connectorID)
		}
	case ocpp16.ChargingProfilePurposeTxProfile:
		if connectorID == 0 {
			return fmt.Errorf("TxProfile must target a specific connector")
		}
		if !conn.TransactionStarted {
			return fmt.Errorf("TxProfile requires an active transaction on connector %d", connectorID)
		}
		if profile.TransactionId != nil && *profile.TransactionId != conn.TransactionID {
			return fmt.Errorf("TxProfile transaction %d does not match active transaction %d", *profile.TransactionId, conn.TransactionID)
		}
	}

	for i := range conn.ChargingProfiles16 {
		if conn.ChargingProfiles16[i].ChargingProfileId == profile.ChargingProfileId {
			conn.ChargingProfiles16[i] = profile
			return nil
		}
	}
	conn.ChargingProfiles16 = append(conn.ChargingProfiles16, profile)
	return nil
}

// SetRemoteStartProfileV16 预存远程启动附带的TxProfile
// 此时交易尚未建立，跳过交易匹配检查，交易ID由StartTransaction响应回填
func (s *Station) SetRemoteStartProfileV16(connectorID int, profile ocpp16.ChargingProfile) error {
	if profile.ChargingProfilePurpose != ocpp16.ChargingProfilePurposeTxProfile {
		return fmt.Errorf("remote start profile must have TxProfile purpose, got %s", profile.ChargingProfilePurpose)
	}
	if connectorID == 0 {
		return fmt.Errorf("TxProfile must target a specific connector")
	}
	if err := ValidateChargingProfileV16(&profile, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[connectorID]
	if !ok {
		return fmt.Errorf("connector %d not found on %s", connectorID, s.config.ID)
	}

	for i := range conn.ChargingProfiles16 {
		if conn.ChargingProfiles16[i].ChargingProfileId == profile.ChargingProfileId {
			conn.ChargingProfiles16[i] = profile
			return nil
		}
	}
	conn.ChargingProfiles16 = append(conn.ChargingProfiles16, profile)
	return nil
}

// ClearChargingProfilesV16 按匹配条件移除1.6充电配置文件，返回移除数量
func (s *Station) ClearChargingProfilesV16(req *ocpp16.ClearChargingProfileRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, conn := range s.connectors {
		if req.ConnectorId != nil && *req.ConnectorId != id {
			continue
		}
		if len(conn.ChargingProfiles16) == 0 {
			continue
		}

		kept := conn.ChargingProfiles16[:0]
		for i := range conn.ChargingProfiles16 {
			if matchesClearCriteria(&conn.ChargingProfiles16[i], req) {
				removed++
				continue
			}
			kept = append(kept, conn.ChargingProfiles16[i])
		}
		conn.ChargingProfiles16 = kept
	}
	return removed
}

// ChargingProfilesV16 连接器上已安装的1.6充电配置文件副本
func (s *Station) ChargingProfilesV16(connectorID int) []ocpp16.ChargingProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[connectorID]
	if !ok || len(conn.ChargingProfiles16) == 0 {
		return nil
	}
	return append([]ocpp16.ChargingProfile(nil), conn.ChargingProfiles16...)
}

// SetChargingProfileV201 在EVSE上安装或替换2.0.1充电配置文件
func (s *Station) SetChargingProfileV201(evseID int, profile ocpp201.ChargingProfile) error {
	if err := ValidateChargingProfileV201(&profile, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connectors[evseID]
	if !ok {
		return fmt.Errorf("evse %d not found on %s", evseID, s.config.ID)
	}

	switch profile.ChargingProfilePurpose {
	case ocpp201.ChargingProfilePurposeChargingStationMaxProfile:
		if evseID != 0 {
			return fmt.Errorf("ChargingStationMaxProfile must target evse 0, got %d", evseID)
		}
	case ocpp201.ChargingProfilePurposeTxProfile:
		if evseID == 0 {
			return fmt.Errorf("TxProfile must target a specific evse")
		}
		if !conn.TransactionStarted {
			return fmt.Errorf("TxProfile requires an active transaction on evse %d", evseID)
		}
		if profile.TransactionId != nil && *profile.TransactionId != conn.TransactionUID {
			return fmt.Errorf("TxProfile transaction %s does not match active transaction %s", *profile.TransactionId, conn.TransactionUID)
		}
	}

	for i := range conn.ChargingProfiles201 {
		if conn.ChargingProfiles201[i].Id == profile.Id {
			conn.ChargingProfiles201[i] = profile
			return nil
		}
	}
	conn.ChargingProfiles201 = append(conn.ChargingProfiles201, profile)
	return nil
}

// ChargingProfilesV201 EVSE上已安装的2.0.1充电配置文件副本
func (s *Station) ChargingProfilesV201(evseID int) []ocpp201.ChargingProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connectors[evseID]
	if !ok || len(conn.ChargingProfiles201) == 0 {
		return nil
	}
	return append([]ocpp201.ChargingProfile(nil), conn.ChargingProfiles201...)
}
