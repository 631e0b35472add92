package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/handler/middleware"
	"github.com/DanielPopoola/payment-orchestrator/internal/api"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
	// Validator checks requests against the OpenAPI document before routing.
	Validator func(http.Handler) http.Handler
}

// NewRouter mounts the API, docs and metrics endpoints and wraps them in the middleware chain.
func NewRouter(h *PaymentHandler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec())
	})
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := http.Handler(mux)
	if cfg.Validator != nil {
		handler = cfg.Validator(handler)
	}
	handler = middleware.Timeout(cfg.RequestTimeout)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger)(handler)

	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
		}).Handler(handler)
	}

	return otelhttp.NewHandler(handler, "http-request")
}

// ValidationErrorWriter renders an OpenAPI validation failure as a VALIDATION_ERROR response.
func ValidationErrorWriter(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, domain.NewValidationError(err.Error()))
}
