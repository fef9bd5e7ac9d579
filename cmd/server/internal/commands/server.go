package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/beacon/api/sosv1/sosv1connect"
	"github.com/wolfeidau/beacon/internal/contacts"
	"github.com/wolfeidau/beacon/internal/location"
	"github.com/wolfeidau/beacon/internal/logger"
	"github.com/wolfeidau/beacon/internal/notify"
	"github.com/wolfeidau/beacon/internal/registry"
	"github.com/wolfeidau/beacon/internal/server"
	"github.com/wolfeidau/beacon/internal/sos"
	"github.com/wolfeidau/beacon/internal/store"
	memorystore "github.com/wolfeidau/beacon/internal/store/memory"
	postgresstore "github.com/wolfeidau/beacon/internal/store/postgres"
	"github.com/wolfeidau/beacon/internal/telemetry"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"BEACON_LISTEN"`
	Cert   string `help:"path to TLS cert file; plaintext HTTP/2 when unset" default:"" env:"BEACON_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"BEACON_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"BEACON_CORS_ORIGINS"`

	// Telemetry
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"BEACON_TRACING"`
	SampleRatio float64 `help:"fraction of root traces sampled" default:"1" env:"BEACON_TRACE_SAMPLE_RATIO"`

	ShutdownTimeout time.Duration `help:"time allowed for in-flight deliveries on shutdown" default:"30s" env:"BEACON_SHUTDOWN_TIMEOUT"`

	// Store configuration
	StoreType     string             `help:"session archive type (memory or postgres)" default:"memory" env:"BEACON_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Registry configuration
	RegistryType string     `help:"session registry type (memory or redis)" default:"memory" env:"BEACON_REGISTRY_TYPE" enum:"memory,redis"`
	Redis        RedisFlags `embed:"" prefix:"redis-"`

	NATS    NATSFlags    `embed:"" prefix:"nats-"`
	Notify  NotifyFlags  `embed:"" prefix:"notify-"`
	Session SessionFlags `embed:"" prefix:"session-"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	var interceptors []connect.Interceptor
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "beacon-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	archive, closeArchive, err := c.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeArchive()

	reg, closeRegistry, err := c.openRegistry(ctx, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	source, closeSource, err := c.openSource(log)
	if err != nil {
		return err
	}
	defer closeSource()

	directory, err := c.openDirectory(log)
	if err != nil {
		return err
	}

	var channel notify.Channel = notify.LogChannel{}
	if c.Notify.WebhookURL != "" {
		channel = notify.NewWebhookChannel(c.Notify.WebhookURL, c.Notify.WebhookAPIKey)
	} else {
		log.Warn().Msg("No notification webhook configured, messages are only logged")
	}

	engine, err := sos.NewEngine(c.Session.config(), sos.Deps{
		Registry:  reg,
		Directory: directory,
		Channel:   channel,
		Source:    source,
		Store:     archive,
	})
	if err != nil {
		return fmt.Errorf("failed to create SOS engine: %w", err)
	}

	srv := server.NewServer(engine)
	mux := srv.Handler(log, interceptors...)

	api := withCORS(c.CORSOrigins, mux)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	httpServer, err := c.httpServer(handler)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", c.StoreType).Str("registry", c.RegistryType).Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}
	if err := engine.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Deliveries still in flight at shutdown")
	}

	return nil
}

func (c *ServerCmd) httpServer(handler http.Handler) (*http.Server, error) {
	if c.Cert == "" && c.Key == "" {
		// Connect and gRPC clients need HTTP/2 without TLS
		return configureHTTPServer(c.Listen, h2c.NewHandler(handler, &http2.Server{})), nil
	}

	if c.Cert == "" || c.Key == "" {
		return nil, errors.New("both TLS certificate and key are required (--cert and --key)")
	}
	if _, err := os.Stat(c.Cert); err != nil {
		return nil, fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
	}
	if _, err := os.Stat(c.Key); err != nil {
		return nil, fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
	}
	return configureHTTPServer(c.Listen, handler), nil
}

func (c *ServerCmd) openStore(ctx context.Context, log zerolog.Logger) (store.SessionStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, err
		}

		log.Info().Bool("auto_migrate", c.PostgresStore.AutoMigrate).Msg("Using PostgreSQL session archive")
		pgStore, err := postgresstore.NewSessionStore(ctx, c.PostgresStore.config())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		return pgStore, pgStore.Close, nil
	default:
		log.Info().Msg("Using in-memory session archive")
		return memorystore.NewSessionStore(), func() {}, nil
	}
}

func (c *ServerCmd) openRegistry(ctx context.Context, log zerolog.Logger) (registry.Registry, func(), error) {
	switch c.RegistryType {
	case "redis":
		if err := c.Redis.Validate(); err != nil {
			return nil, nil, err
		}

		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Redis.Addrs,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		log.Info().Strs("addrs", c.Redis.Addrs).Dur("slot_ttl", c.Redis.SlotTTL).Msg("Using Redis session registry")
		reg := registry.NewRedisRegistry(client, registry.RedisConfig{
			Prefix: c.Redis.Prefix,
			TTL:    c.Redis.SlotTTL,
		})
		return reg, func() {
			reg.Close()
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}, nil
	default:
		return registry.NewMemoryRegistry(), func() {}, nil
	}
}

func (c *ServerCmd) openSource(log zerolog.Logger) (location.Source, func(), error) {
	if c.NATS.URL == "" {
		return nil, func() {}, nil
	}

	conn, err := nats.Connect(c.NATS.URL,
		nats.Name("beacon-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info().Str("url", conn.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", c.NATS.URL).Str("subject_prefix", c.NATS.Subject).Msg("Subscribing to device locations")
	return location.NewNATSSource(conn, c.NATS.Subject), func() {
		if err := conn.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}, nil
}

func (c *ServerCmd) openDirectory(log zerolog.Logger) (contacts.Directory, error) {
	if c.Notify.ContactsFile == "" {
		log.Warn().Msg("No contacts file configured, users have no emergency contacts")
		return contacts.NewMemoryDirectory(), nil
	}

	dir, err := contacts.LoadFile(c.Notify.ContactsFile)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", c.Notify.ContactsFile).Msg("Loaded emergency contacts")
	return dir, nil
}

// isAPIRoute returns true if the path is an RPC route that needs CORS
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/"+sosv1connect.SOSServiceName+"/")
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: connectcors.AllowedHeaders(),
		ExposedHeaders: append(connectcors.ExposedHeaders(), server.ExistingSessionHeader),
	})
	return middleware.Handler(h)
}
