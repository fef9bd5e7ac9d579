package server

import (
	"context"
	"time"

	"connectrpc.com/connect"
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
	"github.com/wolfeidau/beacon/api/sosv1/sosv1connect"
	httpmiddleware "github.com/wolfeidau/beacon/internal/http"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/sos"
)

var _ sosv1connect.SOSServiceHandler = &SOSServer{}

type SOSServer struct {
	engine *sos.Engine
}

func NewSOSServer(engine *sos.Engine) *SOSServer {
	return &SOSServer{
		engine: engine,
	}
}

func (s *SOSServer) Raise(ctx context.Context, req *connect.Request[sosv1.RaiseRequest]) (*connect.Response[sosv1.RaiseResponse], error) {
	trigger := models.TriggerType(req.Msg.TriggerType)
	if trigger == "" {
		trigger = models.TriggerManual
	}

	countdown := s.engine.DefaultCountdown(trigger)
	if req.Msg.CountdownSeconds != nil {
		if *req.Msg.CountdownSeconds < 0 {
			return nil, connect.NewError(connect.CodeInvalidArgument, errNegativeCountdown)
		}
		countdown = time.Duration(*req.Msg.CountdownSeconds) * time.Second
	}

	sessionID, err := s.engine.Raise(ctx, req.Msg.UserID, trigger, countdown,
		sos.WithClientIP(httpmiddleware.ClientIPFromContext(ctx)),
		sos.WithUserName(req.Msg.UserName))
	if err != nil {
		return nil, toConnectError(err)
	}

	state := models.StateCountingDown
	if countdown == 0 {
		state = models.StateActive
	}

	return connect.NewResponse(&sosv1.RaiseResponse{
		SessionID: sessionID,
		State:     string(state),
	}), nil
}

func (s *SOSServer) TriggerNow(ctx context.Context, req *connect.Request[sosv1.TriggerNowRequest]) (*connect.Response[sosv1.TriggerNowResponse], error) {
	if err := s.engine.TriggerNow(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.TriggerNowResponse{}), nil
}

func (s *SOSServer) Cancel(ctx context.Context, req *connect.Request[sosv1.CancelRequest]) (*connect.Response[sosv1.CancelResponse], error) {
	if err := s.engine.Cancel(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.CancelResponse{}), nil
}

func (s *SOSServer) Deactivate(ctx context.Context, req *connect.Request[sosv1.DeactivateRequest]) (*connect.Response[sosv1.DeactivateResponse], error) {
	if err := s.engine.Deactivate(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.DeactivateResponse{}), nil
}

func (s *SOSServer) IngestLocation(ctx context.Context, req *connect.Request[sosv1.IngestLocationRequest]) (*connect.Response[sosv1.IngestLocationResponse], error) {
	if req.Msg.Location == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingLocation)
	}

	accepted, err := s.engine.IngestLocation(ctx, req.Msg.SessionID, fromLocation(req.Msg.Location))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.IngestLocationResponse{Accepted: accepted}), nil
}

func (s *SOSServer) GetSession(ctx context.Context, req *connect.Request[sosv1.GetSessionRequest]) (*connect.Response[sosv1.GetSessionResponse], error) {
	snap, err := s.engine.GetSessionState(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.GetSessionResponse{Session: toSession(snap)}), nil
}

func (s *SOSServer) GetActiveSession(ctx context.Context, req *connect.Request[sosv1.GetActiveSessionRequest]) (*connect.Response[sosv1.GetActiveSessionResponse], error) {
	snap, err := s.engine.ActiveSession(ctx, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&sosv1.GetActiveSessionResponse{Session: toSession(snap)}), nil
}

func (s *SOSServer) ListHistory(ctx context.Context, req *connect.Request[sosv1.ListHistoryRequest]) (*connect.Response[sosv1.ListHistoryResponse], error) {
	snaps, err := s.engine.History(ctx, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}

	sessions := make([]*sosv1.Session, 0, len(snaps))
	for _, snap := range snaps {
		sessions = append(sessions, toSession(snap))
	}
	return connect.NewResponse(&sosv1.ListHistoryResponse{Sessions: sessions}), nil
}
