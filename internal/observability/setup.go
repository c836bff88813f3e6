package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/LibraryAuthService/internal/config"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupLogger installs the JSON logger ahead of config loading so every
// startup line uses the same format.
func SetupLogger(level string) {
	observability.InitLogger(level)
}

// Setup wires logging, metrics and tracing, returning the tracer shutdown
// hook and the metrics handler to mount on the router.
func Setup(serviceName string, cfg *config.Config) (func(context.Context) error, http.Handler) {
	observability.InitLogger(cfg.LogLevel)
	observability.InitMetrics()
	tracerShutdown := observability.InitTracing(serviceName, cfg.OTLPEndpoint)
	return tracerShutdown, promhttp.Handler()
}
