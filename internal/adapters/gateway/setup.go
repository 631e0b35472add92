package gateway

import (
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/DanielPopoola/payment-orchestrator/internal/telemetry"
)

// NewRegistryFromConfig registers every enabled provider, each wrapped in
// retries around an instrumented adapter, and applies the method routes.
func NewRegistryFromConfig(cfg config.GatewayConfig, retryCfg config.RetryConfig, metrics *telemetry.Metrics, logger *slog.Logger) (*Registry, *Sandbox, error) {
	reg := NewRegistry()
	wrap := func(a ports.GatewayAdapter) ports.GatewayAdapter {
		return NewRetryGateway(NewInstrumented(a, metrics), retryCfg)
	}

	var sandbox *Sandbox
	if cfg.Sandbox.Enabled {
		sandbox = NewSandbox(cfg.Sandbox.Latency)
		reg.Register(wrap(sandbox), NewSandboxWebhook(cfg.Sandbox.WebhookSecret))
		logger.Info("gateway registered", "gateway", SandboxName)
	}
	if cfg.Stripe.Enabled {
		if cfg.Stripe.SecretKey == "" {
			return nil, nil, fmt.Errorf("gateway.stripe.secret_key is required when stripe is enabled")
		}
		reg.Register(wrap(NewStripe(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey, cfg.Timeout)), NewStripeWebhook(cfg.Stripe.WebhookSecret))
		logger.Info("gateway registered", "gateway", StripeName)
	}
	if cfg.YooKassa.Enabled {
		if cfg.YooKassa.ShopID == "" || cfg.YooKassa.SecretKey == "" {
			return nil, nil, fmt.Errorf("gateway.yookassa.shop_id and secret_key are required when yookassa is enabled")
		}
		reg.Register(
			wrap(NewYooKassa(cfg.YooKassa.BaseURL, cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey, cfg.YooKassa.ReturnURL, cfg.Timeout)),
			NewYooKassaWebhook(cfg.YooKassa.WebhookSecret),
		)
		logger.Info("gateway registered", "gateway", YooKassaName)
	}

	if len(reg.Names()) == 0 {
		return nil, nil, fmt.Errorf("no gateway enabled")
	}

	for method, name := range cfg.Routes {
		if err := reg.Route(domain.PaymentMethod(method), name); err != nil {
			return nil, nil, err
		}
	}

	return reg, sandbox, nil
}
