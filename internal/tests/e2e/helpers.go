package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/gateway"
	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/handler"
	"github.com/DanielPopoola/payment-orchestrator/internal/tests/e2e/testdata"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// APIError is a non-2xx response from the orchestrator.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Message)
}

// TestClient wraps HTTP calls to a running orchestrator.
type TestClient struct {
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
}

func NewTestClient(baseURL, webhookSecret string) *TestClient {
	return &TestClient{
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// do sends body as JSON and decodes the envelope's data into out.
func (c *TestClient) do(t *testing.T, method, path string, body any, headers map[string]string, out any) error {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(t, resp, out)
}

func decode(t *testing.T, resp *http.Response, out any) error {
	t.Helper()
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Success bool              `json:"success"`
		Data    json.RawMessage   `json:"data"`
		Error   *handler.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(bodyBytes, &envelope), string(bodyBytes))

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return nil
}

func (c *TestClient) CreatePayment(t *testing.T, amount string) (*handler.PaymentResponse, error) {
	req := map[string]any{
		"amount":      amount,
		"currency":    "RUB",
		"method":      "card",
		"customer_id": "cust-" + uuid.NewString(),
		"description": "e2e order",
	}
	var p handler.PaymentResponse
	if err := c.do(t, http.MethodPost, "/api/payments", req, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *TestClient) ProcessPayment(t *testing.T, id uuid.UUID, card testdata.TestCard) (*handler.PaymentResponse, error) {
	req := map[string]any{
		"card": map[string]any{
			"number":    card.Number,
			"exp_month": card.ExpMonth,
			"exp_year":  card.ExpYear,
			"cvc":       card.CVC,
			"holder":    card.Holder,
		},
	}
	var p handler.PaymentResponse
	if err := c.do(t, http.MethodPost, "/api/payments/"+id.String()+"/process", req, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *TestClient) GetPayment(t *testing.T, id uuid.UUID) (*handler.PaymentResponse, error) {
	var p handler.PaymentResponse
	if err := c.do(t, http.MethodGet, "/api/payments/"+id.String(), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *TestClient) CancelPayment(t *testing.T, id uuid.UUID) (*handler.PaymentResponse, error) {
	var p handler.PaymentResponse
	if err := c.do(t, http.MethodPost, "/api/payments/"+id.String()+"/cancel", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Refund refunds amount, or the remaining balance when amount is empty.
func (c *TestClient) Refund(t *testing.T, id uuid.UUID, amount, idempotencyKey string) (*handler.RefundResponse, error) {
	var body any
	if amount != "" {
		body = map[string]any{"amount": amount}
	}
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var r handler.RefundResponse
	if err := c.do(t, http.MethodPost, "/api/payments/"+id.String()+"/refund", body, headers, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SendSandboxWebhook posts a signed sandbox notification.
func (c *TestClient) SendSandboxWebhook(t *testing.T, n gateway.SandboxNotification) (string, error) {
	payload, err := json.Marshal(n)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/webhooks/sandbox", bytes.NewReader(payload))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(gateway.SandboxSignatureHeader, gateway.Sign(c.webhookSecret, payload))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out handler.WebhookResponse
	if err := decode(t, resp, &out); err != nil {
		return "", err
	}
	return out.Outcome, nil
}
