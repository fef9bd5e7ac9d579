package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/beacon/api/sosv1/sosv1connect"
	httpmiddleware "github.com/wolfeidau/beacon/internal/http"
	"github.com/wolfeidau/beacon/internal/logger"
	"github.com/wolfeidau/beacon/internal/sos"
)

// Server wraps the HTTP server and the SOS service
type Server struct {
	engine    *sos.Engine
	sosServer *SOSServer
}

// NewServer creates a new server hosting the given engine
func NewServer(engine *sos.Engine) *Server {
	return &Server{
		engine:    engine,
		sosServer: NewSOSServer(engine),
	}
}

// Handler returns the HTTP handler for the server. Extra interceptors run
// after request logging.
func (s *Server) Handler(log zerolog.Logger, interceptors ...connect.Interceptor) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	interceptors = append([]connect.Interceptor{logger.NewConnectRequests(log)}, interceptors...)

	sosPath, sosHandler := sosv1connect.NewSOSServiceHandler(
		s.sosServer,
		connect.WithInterceptors(interceptors...),
		sosv1connect.WithGzipHandler(),
	)
	mux.Handle(sosPath, sosHandler)

	// Raise records the caller address on the session
	return httpmiddleware.ClientIPMiddleware()(mux)
}
