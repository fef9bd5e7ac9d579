package client

import (
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/api/sosv1/sosv1connect"
	"github.com/wolfeidau/beacon/internal/logger"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
	// Compress gzips requests.
	Compress bool
}

// Clients holds the RPC clients
type Clients struct {
	SOS sosv1connect.SOSServiceClient
}

// NewClients creates new RPC clients with the given configuration. In debug
// mode every call is logged through the global logger.
func NewClients(config Config, opts ...connect.ClientOption) (*Clients, error) {
	if config.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	if config.Compress {
		opts = append(opts, sosv1connect.WithGzipClient())
	}
	if config.Debug {
		opts = append(opts, connect.WithInterceptors(logger.NewConnectRequests(log.Logger)))
	}

	return &Clients{
		SOS: sosv1connect.NewSOSServiceClient(httpClient, config.ServerURL, opts...),
	}, nil
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}
