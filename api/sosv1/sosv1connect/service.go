// Package sosv1connect holds the Connect handler and client for the
// sos.v1.SOSService.
package sosv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
)

const SOSServiceName = "sos.v1.SOSService"

const (
	SOSServiceRaiseProcedure            = "/sos.v1.SOSService/Raise"
	SOSServiceTriggerNowProcedure       = "/sos.v1.SOSService/TriggerNow"
	SOSServiceCancelProcedure           = "/sos.v1.SOSService/Cancel"
	SOSServiceDeactivateProcedure       = "/sos.v1.SOSService/Deactivate"
	SOSServiceIngestLocationProcedure   = "/sos.v1.SOSService/IngestLocation"
	SOSServiceGetSessionProcedure       = "/sos.v1.SOSService/GetSession"
	SOSServiceGetActiveSessionProcedure = "/sos.v1.SOSService/GetActiveSession"
	SOSServiceListHistoryProcedure      = "/sos.v1.SOSService/ListHistory"
)

// SOSServiceHandler is implemented by the server.
type SOSServiceHandler interface {
	Raise(context.Context, *connect.Request[sosv1.RaiseRequest]) (*connect.Response[sosv1.RaiseResponse], error)
	TriggerNow(context.Context, *connect.Request[sosv1.TriggerNowRequest]) (*connect.Response[sosv1.TriggerNowResponse], error)
	Cancel(context.Context, *connect.Request[sosv1.CancelRequest]) (*connect.Response[sosv1.CancelResponse], error)
	Deactivate(context.Context, *connect.Request[sosv1.DeactivateRequest]) (*connect.Response[sosv1.DeactivateResponse], error)
	IngestLocation(context.Context, *connect.Request[sosv1.IngestLocationRequest]) (*connect.Response[sosv1.IngestLocationResponse], error)
	GetSession(context.Context, *connect.Request[sosv1.GetSessionRequest]) (*connect.Response[sosv1.GetSessionResponse], error)
	GetActiveSession(context.Context, *connect.Request[sosv1.GetActiveSessionRequest]) (*connect.Response[sosv1.GetActiveSessionResponse], error)
	ListHistory(context.Context, *connect.Request[sosv1.ListHistoryRequest]) (*connect.Response[sosv1.ListHistoryResponse], error)
}

// NewSOSServiceHandler builds an HTTP handler serving every procedure of the
// service. It returns the path prefix to mount the handler on.
func NewSOSServiceHandler(svc SOSServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	options := connect.WithHandlerOptions(opts...)

	handlers := map[string]http.Handler{
		SOSServiceRaiseProcedure:            connect.NewUnaryHandler(SOSServiceRaiseProcedure, svc.Raise, options),
		SOSServiceTriggerNowProcedure:       connect.NewUnaryHandler(SOSServiceTriggerNowProcedure, svc.TriggerNow, options),
		SOSServiceCancelProcedure:           connect.NewUnaryHandler(SOSServiceCancelProcedure, svc.Cancel, options),
		SOSServiceDeactivateProcedure:       connect.NewUnaryHandler(SOSServiceDeactivateProcedure, svc.Deactivate, options),
		SOSServiceIngestLocationProcedure:   connect.NewUnaryHandler(SOSServiceIngestLocationProcedure, svc.IngestLocation, options),
		SOSServiceGetSessionProcedure:       connect.NewUnaryHandler(SOSServiceGetSessionProcedure, svc.GetSession, options),
		SOSServiceGetActiveSessionProcedure: connect.NewUnaryHandler(SOSServiceGetActiveSessionProcedure, svc.GetActiveSession, options),
		SOSServiceListHistoryProcedure:      connect.NewUnaryHandler(SOSServiceListHistoryProcedure, svc.ListHistory, options),
	}

	return "/" + SOSServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// SOSServiceClient calls the service over HTTP.
type SOSServiceClient interface {
	Raise(context.Context, *connect.Request[sosv1.RaiseRequest]) (*connect.Response[sosv1.RaiseResponse], error)
	TriggerNow(context.Context, *connect.Request[sosv1.TriggerNowRequest]) (*connect.Response[sosv1.TriggerNowResponse], error)
	Cancel(context.Context, *connect.Request[sosv1.CancelRequest]) (*connect.Response[sosv1.CancelResponse], error)
	Deactivate(context.Context, *connect.Request[sosv1.DeactivateRequest]) (*connect.Response[sosv1.DeactivateResponse], error)
	IngestLocation(context.Context, *connect.Request[sosv1.IngestLocationRequest]) (*connect.Response[sosv1.IngestLocationResponse], error)
	GetSession(context.Context, *connect.Request[sosv1.GetSessionRequest]) (*connect.Response[sosv1.GetSessionResponse], error)
	GetActiveSession(context.Context, *connect.Request[sosv1.GetActiveSessionRequest]) (*connect.Response[sosv1.GetActiveSessionResponse], error)
	ListHistory(context.Context, *connect.Request[sosv1.ListHistoryRequest]) (*connect.Response[sosv1.ListHistoryResponse], error)
}

type sosServiceClient struct {
	raise            *connect.Client[sosv1.RaiseRequest, sosv1.RaiseResponse]
	triggerNow       *connect.Client[sosv1.TriggerNowRequest, sosv1.TriggerNowResponse]
	cancel           *connect.Client[sosv1.CancelRequest, sosv1.CancelResponse]
	deactivate       *connect.Client[sosv1.DeactivateRequest, sosv1.DeactivateResponse]
	ingestLocation   *connect.Client[sosv1.IngestLocationRequest, sosv1.IngestLocationResponse]
	getSession       *connect.Client[sosv1.GetSessionRequest, sosv1.GetSessionResponse]
	getActiveSession *connect.Client[sosv1.GetActiveSessionRequest, sosv1.GetActiveSessionResponse]
	listHistory      *connect.Client[sosv1.ListHistoryRequest, sosv1.ListHistoryResponse]
}

// NewSOSServiceClient constructs a client for the service at baseURL.
func NewSOSServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SOSServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	options := connect.WithClientOptions(opts...)

	return &sosServiceClient{
		raise:            connect.NewClient[sosv1.RaiseRequest, sosv1.RaiseResponse](httpClient, baseURL+SOSServiceRaiseProcedure, options),
		triggerNow:       connect.NewClient[sosv1.TriggerNowRequest, sosv1.TriggerNowResponse](httpClient, baseURL+SOSServiceTriggerNowProcedure, options),
		cancel:           connect.NewClient[sosv1.CancelRequest, sosv1.CancelResponse](httpClient, baseURL+SOSServiceCancelProcedure, options),
		deactivate:       connect.NewClient[sosv1.DeactivateRequest, sosv1.DeactivateResponse](httpClient, baseURL+SOSServiceDeactivateProcedure, options),
		ingestLocation:   connect.NewClient[sosv1.IngestLocationRequest, sosv1.IngestLocationResponse](httpClient, baseURL+SOSServiceIngestLocationProcedure, options),
		getSession:       connect.NewClient[sosv1.GetSessionRequest, sosv1.GetSessionResponse](httpClient, baseURL+SOSServiceGetSessionProcedure, options),
		getActiveSession: connect.NewClient[sosv1.GetActiveSessionRequest, sosv1.GetActiveSessionResponse](httpClient, baseURL+SOSServiceGetActiveSessionProcedure, options),
		listHistory:      connect.NewClient[sosv1.ListHistoryRequest, sosv1.ListHistoryResponse](httpClient, baseURL+SOSServiceListHistoryProcedure, options),
	}
}

func (c *sosServiceClient) Raise(ctx context.Context, req *connect.Request[sosv1.RaiseRequest]) (*connect.Response[sosv1.RaiseResponse], error) {
	return c.raise.CallUnary(ctx, req)
}

func (c *sosServiceClient) TriggerNow(ctx context.Context, req *connect.Request[sosv1.TriggerNowRequest]) (*connect.Response[sosv1.TriggerNowResponse], error) {
	return c.triggerNow.CallUnary(ctx, req)
}

func (c *sosServiceClient) Cancel(ctx context.Context, req *connect.Request[sosv1.CancelRequest]) (*connect.Response[sosv1.CancelResponse], error) {
	return c.cancel.CallUnary(ctx, req)
}

func (c *sosServiceClient) Deactivate(ctx context.Context, req *connect.Request[sosv1.DeactivateRequest]) (*connect.Response[sosv1.DeactivateResponse], error) {
	return c.deactivate.CallUnary(ctx, req)
}

func (c *sosServiceClient) IngestLocation(ctx context.Context, req *connect.Request[sosv1.IngestLocationRequest]) (*connect.Response[sosv1.IngestLocationResponse], error) {
	return c.ingestLocation.CallUnary(ctx, req)
}

func (c *sosServiceClient) GetSession(ctx context.Context, req *connect.Request[sosv1.GetSessionRequest]) (*connect.Response[sosv1.GetSessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *sosServiceClient) GetActiveSession(ctx context.Context, req *connect.Request[sosv1.GetActiveSessionRequest]) (*connect.Response[sosv1.GetActiveSessionResponse], error) {
	return c.getActiveSession.CallUnary(ctx, req)
}

func (c *sosServiceClient) ListHistory(ctx context.Context, req *connect.Request[sosv1.ListHistoryRequest]) (*connect.Response[sosv1.ListHistoryResponse], error) {
	return c.listHistory.CallUnary(ctx, req)
}
