package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/beacon"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session lifecycle metrics
	SessionsRaisedTotal      metric.Int64Counter
	SessionsCancelledTotal   metric.Int64Counter
	SessionsActivatedTotal   metric.Int64Counter
	SessionsDeactivatedTotal metric.Int64Counter
	SessionsExpiredTotal     metric.Int64Counter
	SessionConflictsTotal    metric.Int64Counter
	ActiveSessions           metric.Int64UpDownCounter

	// Dispatch metrics
	DispatchAttemptsTotal   metric.Int64Counter
	DispatchDeliveredTotal  metric.Int64Counter
	DispatchFailuresTotal   metric.Int64Counter
	DispatchAttemptDuration metric.Float64Histogram
	LocationUpdatesTotal    metric.Int64Counter

	// Location metrics
	LocationsAcceptedTotal metric.Int64Counter
	LocationsDroppedTotal  metric.Int64Counter

	// Archive metrics
	ArchiveErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Session lifecycle metrics
	m.SessionsRaisedTotal, _ = meter.Int64Counter(
		"beacon.sessions.raised.total",
		metric.WithDescription("Total number of SOS sessions raised"),
		metric.WithUnit("{session}"),
	)

	m.SessionsCancelledTotal, _ = meter.Int64Counter(
		"beacon.sessions.cancelled.total",
		metric.WithDescription("Total number of SOS sessions cancelled during countdown"),
		metric.WithUnit("{session}"),
	)

	m.SessionsActivatedTotal, _ = meter.Int64Counter(
		"beacon.sessions.activated.total",
		metric.WithDescription("Total number of SOS sessions that became active"),
		metric.WithUnit("{session}"),
	)

	m.SessionsDeactivatedTotal, _ = meter.Int64Counter(
		"beacon.sessions.deactivated.total",
		metric.WithDescription("Total number of SOS sessions deactivated by the user"),
		metric.WithUnit("{session}"),
	)

	m.SessionsExpiredTotal, _ = meter.Int64Counter(
		"beacon.sessions.expired.total",
		metric.WithDescription("Total number of active SOS sessions closed by the lifetime limit"),
		metric.WithUnit("{session}"),
	)

	m.SessionConflictsTotal, _ = meter.Int64Counter(
		"beacon.sessions.conflicts.total",
		metric.WithDescription("Total number of raises rejected because the user already had an open session"),
		metric.WithUnit("{session}"),
	)

	m.ActiveSessions, _ = meter.Int64UpDownCounter(
		"beacon.sessions.active",
		metric.WithDescription("Number of SOS sessions currently active"),
		metric.WithUnit("{session}"),
	)

	// Dispatch metrics
	m.DispatchAttemptsTotal, _ = meter.Int64Counter(
		"beacon.dispatch.attempts.total",
		metric.WithDescription("Total number of delivery attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.DispatchDeliveredTotal, _ = meter.Int64Counter(
		"beacon.dispatch.delivered.total",
		metric.WithDescription("Total number of messages delivered to contacts"),
		metric.WithUnit("{message}"),
	)

	m.DispatchFailuresTotal, _ = meter.Int64Counter(
		"beacon.dispatch.failures.total",
		metric.WithDescription("Total number of messages that exhausted their attempts"),
		metric.WithUnit("{message}"),
	)

	m.DispatchAttemptDuration, _ = meter.Float64Histogram(
		"beacon.dispatch.attempt.duration",
		metric.WithDescription("Duration of individual delivery attempts"),
		metric.WithUnit("ms"),
	)

	m.LocationUpdatesTotal, _ = meter.Int64Counter(
		"beacon.dispatch.location_updates.total",
		metric.WithDescription("Total number of coalesced location update rounds"),
		metric.WithUnit("{round}"),
	)

	// Location metrics
	m.LocationsAcceptedTotal, _ = meter.Int64Counter(
		"beacon.locations.accepted.total",
		metric.WithDescription("Total number of location samples accepted"),
		metric.WithUnit("{sample}"),
	)

	m.LocationsDroppedTotal, _ = meter.Int64Counter(
		"beacon.locations.dropped.total",
		metric.WithDescription("Total number of location samples dropped as stale or out of state"),
		metric.WithUnit("{sample}"),
	)

	m.ArchiveErrorsTotal, _ = meter.Int64Counter(
		"beacon.archive.errors.total",
		metric.WithDescription("Total number of failed session archive writes"),
		metric.WithUnit("{error}"),
	)

	return m
}
