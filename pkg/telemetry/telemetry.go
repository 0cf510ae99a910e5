// Package telemetry exports the server's prometheus metrics. Counters are
// registered at init and incremented from the dispatch and transport
// paths; the /metrics endpoint serves the default registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "originchats_commands_processed_total",
		Help: "Commands dispatched, by command name.",
	}, []string{"cmd"})

	commandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "originchats_command_errors_total",
		Help: "Commands that produced an error result, by command name.",
	}, []string{"cmd"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "originchats_rate_limited_total",
		Help: "Commands denied by the rate limiter.",
	})

	pluginEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "originchats_plugin_events_total",
		Help: "Plugin bus events emitted, by event name.",
	}, []string{"event"})

	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "originchats_connections",
		Help: "Open websocket connections.",
	})
)

// CommandProcessed counts one dispatched command.
func CommandProcessed(cmd string) { commandsProcessed.WithLabelValues(cmd).Inc() }

// CommandError counts one error result.
func CommandError(cmd string) { commandErrors.WithLabelValues(cmd).Inc() }

// RateLimited counts one rate-limited denial.
func RateLimited() { rateLimited.Inc() }

// PluginEvent counts one emitted bus event.
func PluginEvent(event string) { pluginEvents.WithLabelValues(event).Inc() }

// ConnOpened and ConnClosed track the open connection gauge.
func ConnOpened() { connections.Inc() }
func ConnClosed() { connections.Dec() }

// Handler serves the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
