package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/api/payments/{paymentId}/refund"))
}

func TestRequestValidator(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)

	var rejected error
	validate, err := RequestValidator(doc, func(w http.ResponseWriter, r *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusBadRequest)
	})
	require.NoError(t, err)

	reached := false
	handler := validate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"valid create", http.MethodPost, "/api/payments", `{"amount":"1000.00","currency":"RUB","method":"card"}`, http.StatusOK},
		{"missing amount", http.MethodPost, "/api/payments", `{"currency":"RUB"}`, http.StatusBadRequest},
		{"amount above maximum", http.MethodPost, "/api/payments", `{"amount":100000000000000000000,"currency":"RUB"}`, http.StatusBadRequest},
		{"unknown method", http.MethodPost, "/api/payments", `{"amount":"10","method":"cheque"}`, http.StatusBadRequest},
		{"card without cvc", http.MethodPost, "/api/payments/6f1c2a8e-0000-4000-8000-000000000001/process", `{"card":{"number":"4242424242424242","exp_month":12,"exp_year":2030}}`, http.StatusBadRequest},
		{"refund without body", http.MethodPost, "/api/payments/6f1c2a8e-0000-4000-8000-000000000001/refund", ``, http.StatusOK},
		{"limit out of range", http.MethodGet, "/api/customers/c1/payments?limit=1000", ``, http.StatusBadRequest},
		{"undocumented path passes", http.MethodGet, "/health", ``, http.StatusOK},
		{"webhook body is not checked", http.MethodPost, "/api/webhooks/stripe", `not json`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached, rejected = false, nil
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code, "validation error: %v", rejected)
			assert.Equal(t, tt.want == http.StatusOK, reached)
		})
	}
}

func TestRegisterDocs(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, RegisterDocs(doc))
	require.NoError(t, RegisterDocs(doc))

	raw, err := swag.ReadDoc()
	require.NoError(t, err)
	assert.Contains(t, raw, `"Payment Orchestrator API"`)
}
