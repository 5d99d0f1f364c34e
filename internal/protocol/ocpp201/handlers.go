package ocpp201

import (
	"context"

	"github.com/charging-platform/station-simulator/internal/domain/ocpp201"
	"github.com/charging-platform/station-simulator/internal/transport/router"
)

// handleClearCache 清空授权缓存
func (s *Service) handleClearCache(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	if err := s.station.AuthCache().Clear(); err != nil {
		s.logger.ErrorWithErr(err, "Failed to clear authorization cache")
		return &ocpp201.ClearCacheResponse{Status: ocpp201.ClearCacheStatusRejected}, nil
	}
	return &ocpp201.ClearCacheResponse{Status: ocpp201.ClearCacheStatusAccepted}, nil
}

// handleReset 重置站点或单个EVSE
// Immediate立即结清交易后重启；OnIdle等待交易自然结束后重启
func (s *Service) handleReset(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.ResetRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	st := s.station
	if req.EvseId != nil {
		if !st.HasEvse(*req.EvseId) {
			s.logger.Warnf("Reset for unknown EVSE %d rejected", *req.EvseId)
			return &ocpp201.ResetResponse{
				Status:     ocpp201.ResetStatusRejected,
				StatusInfo: &ocpp201.StatusInfo{ReasonCode: "UnknownEvse"},
			}, nil
		}

		evseID := *req.EvseId
		s.runAsync(func() { s.resetEvse(s.ctx, evseID) })
		return &ocpp201.ResetResponse{Status: ocpp201.ResetStatusAccepted}, nil
	}

	if req.Type == ocpp201.ResetTypeOnIdle && st.ActiveTransactionCount() > 0 {
		if !s.scheduleIdleReset() {
			// 已有排队中的OnIdle重置
			return &ocpp201.ResetResponse{Status: ocpp201.ResetStatusScheduled}, nil
		}
		s.logger.Infof("Reset scheduled, waiting for %d transactions to finish", st.ActiveTransactionCount())
		return &ocpp201.ResetResponse{Status: ocpp201.ResetStatusScheduled}, nil
	}

	s.runAsync(func() { s.performReset(s.ctx) })
	return &ocpp201.ResetResponse{Status: ocpp201.ResetStatusAccepted}, nil
}

// handleGetBaseReport 构建设备模型报告并异步发送NotifyReport序列
func (s *Service) handleGetBaseReport(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.GetBaseReportRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}

	resp := s.deviceModel.PrepareBaseReport(s.station, req)
	if resp.Status == ocpp201.GenericDeviceModelStatusAccepted {
		requestID := req.RequestId
		// 延迟到同步应答送出之后再开始分片推送
		s.runAsync(func() {
			if !s.sleep(s.ctx, s.config.NotifyReportDelay) {
				return
			}
			s.sendNotifyReports(s.ctx, requestID)
		})
	}
	return resp, nil
}

// handleGetVariables 读取设备模型变量
func (s *Service) handleGetVariables(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.GetVariablesRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}
	return s.deviceModel.GetVariables(s.station, req), nil
}

// handleSetVariables 写入设备模型变量
func (s *Service) handleSetVariables(ctx context.Context, call *router.InboundCall) (interface{}, error) {
	req := &ocpp201.SetVariablesRequest{}
	if err := decodePayload(call.Payload, req); err != nil {
		return nil, err
	}
	return s.deviceModel.SetVariables(s.station, req), nil
}

// runAsync 启动随服务生命周期终止的后台任务
func (s *Service) runAsync(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
