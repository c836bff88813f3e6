package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/LibraryAuthService/internal/config"
	"github.com/honeynil/LibraryAuthService/internal/handler"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/auth"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(RequestCounter, RequestDuration)
}

// RouterConfig wires the HTTP layer. Limiter is nil when rate limiting is disabled.
type RouterConfig struct {
	Handler     *handler.Handler
	Verifier    auth.TokenVerifier
	Limiter     ratelimit.Limiter
	GlobalLimit config.RateLimitRule
	AuthLimit   config.RateLimitRule
	Metrics     http.Handler
}

func SetupRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/auth").Subrouter()
	if cfg.Limiter != nil {
		api.Use(ratelimit.Middleware(cfg.Limiter, "global", cfg.GlobalLimit, ratelimit.ClientKey(cfg.Verifier)))
	}

	credentials := api.NewRoute().Subrouter()
	if cfg.Limiter != nil {
		credentials.Use(ratelimit.Middleware(cfg.Limiter, "auth", cfg.AuthLimit, ratelimit.RemoteIP))
	}
	cfg.Handler.RegisterCredentialRoutes(credentials)

	cfg.Handler.RegisterPublicRoutes(api)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.AuthMiddleware(cfg.Verifier))
	cfg.Handler.RegisterProtectedRoutes(protected)

	admin := protected.NewRoute().Subrouter()
	admin.Use(auth.AdminOnly)
	cfg.Handler.RegisterAdminRoutes(admin)

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// metricsMiddleware labels by route template so path parameters do not
// explode the series count.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(recorder.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
