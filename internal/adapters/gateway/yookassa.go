package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/shopspring/decimal"
)

const YooKassaName = "yookassa"

// YooKassa talks to the YooKassa v3 API. Payments are created with capture=true
// and a redirect confirmation.
type YooKassa struct {
	client    *httpClient
	returnURL string
}

func NewYooKassa(baseURL, shopID, secretKey, returnURL string, timeout time.Duration) *YooKassa {
	authorize := func(r *http.Request) {
		r.SetBasicAuth(shopID, secretKey)
	}
	return &YooKassa{
		client:    newHTTPClient(YooKassaName, baseURL, timeout, authorize, parseYooKassaError),
		returnURL: returnURL,
	}
}

func (y *YooKassa) Name() string {
	return YooKassaName
}

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yooCreatePayment struct {
	Amount       yooAmount         `json:"amount"`
	Confirmation yooConfirmation   `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type yooPayment struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status"`
	Amount              yooAmount         `json:"amount"`
	Confirmation        *yooConfirmation  `json:"confirmation"`
	Metadata            map[string]string `json:"metadata"`
	CancellationDetails *yooCancellation  `json:"cancellation_details"`
}

type yooCancellation struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

type yooCreateRefund struct {
	PaymentID string    `json:"payment_id"`
	Amount    yooAmount `json:"amount"`
}

type yooRefund struct {
	ID                  string           `json:"id"`
	PaymentID           string           `json:"payment_id"`
	Status              string           `json:"status"`
	Amount              yooAmount        `json:"amount"`
	CancellationDetails *yooCancellation `json:"cancellation_details"`
}

type yooErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

func parseYooKassaError(status int, body []byte) *Error {
	gwErr := &Error{Provider: YooKassaName, StatusCode: status}
	var parsed yooErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Description == "" {
		gwErr.Message = http.StatusText(status)
		return gwErr
	}
	gwErr.Code = parsed.Code
	gwErr.Message = parsed.Description
	return gwErr
}

func newYooAmount(amount decimal.Decimal, currency string) yooAmount {
	return yooAmount{Value: domain.FormatAmount(amount, currency), Currency: currency}
}

func (y *YooKassa) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = y.returnURL
	}
	body := yooCreatePayment{
		Amount:       newYooAmount(req.Amount, req.Currency),
		Confirmation: yooConfirmation{Type: "redirect", ReturnURL: returnURL},
		Capture:      true,
		Description:  req.Description,
		Metadata:     map[string]string{"payment_id": req.PaymentID.String()},
	}
	if req.CustomerID != "" {
		body.Metadata["customer_id"] = req.CustomerID
	}

	r, err := jsonRequest(http.MethodPost, "/payments", body, "Idempotence-Key", req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	payment, err := send[yooPayment](ctx, y.client, r)
	if err != nil {
		return nil, err
	}
	return payment.toResult(), nil
}

func (y *YooKassa) CaptureCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	r, err := jsonRequest(http.MethodPost, "/payments/"+url.PathEscape(externalID)+"/capture", struct{}{}, "Idempotence-Key", idempotencyKey)
	if err != nil {
		return nil, err
	}
	payment, err := send[yooPayment](ctx, y.client, r)
	if err != nil {
		return nil, err
	}
	return payment.toResult(), nil
}

func (y *YooKassa) GetCharge(ctx context.Context, externalID string) (*domain.ChargeResult, error) {
	payment, err := send[yooPayment](ctx, y.client,
		request{method: http.MethodGet, path: "/payments/" + url.PathEscape(externalID)})
	if err != nil {
		return nil, err
	}
	return payment.toResult(), nil
}

func (y *YooKassa) CancelCharge(ctx context.Context, externalID, idempotencyKey string) (*domain.ChargeResult, error) {
	r, err := jsonRequest(http.MethodPost, "/payments/"+url.PathEscape(externalID)+"/cancel", struct{}{}, "Idempotence-Key", idempotencyKey)
	if err != nil {
		return nil, err
	}
	payment, err := send[yooPayment](ctx, y.client, r)
	if err != nil {
		return nil, err
	}
	return payment.toResult(), nil
}

func (y *YooKassa) RefundCharge(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	body := yooCreateRefund{
		PaymentID: req.ExternalID,
		Amount:    newYooAmount(req.Amount, req.Currency),
	}
	r, err := jsonRequest(http.MethodPost, "/refunds", body, "Idempotence-Key", req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	refund, err := send[yooRefund](ctx, y.client, r)
	if err != nil {
		return nil, err
	}
	res := &domain.RefundResult{
		ExternalID: refund.ID,
		Status:     yooRefundStatus(refund.Status),
	}
	if refund.CancellationDetails != nil {
		res.FailureReason = refund.CancellationDetails.Reason
	}
	return res, nil
}

func (p *yooPayment) toResult() *domain.ChargeResult {
	res := &domain.ChargeResult{
		ExternalID: p.ID,
		Status:     yooPaymentStatus(p.Status, p.CancellationDetails),
	}
	if p.Confirmation != nil {
		res.ConfirmationURL = p.Confirmation.ConfirmationURL
	}
	if p.CancellationDetails != nil {
		res.FailureReason = p.CancellationDetails.Reason
	}
	return res
}

// yooPaymentStatus normalizes payment statuses. A cancellation not made by the
// merchant is a decline.
func yooPaymentStatus(status string, details *yooCancellation) domain.ProviderStatus {
	switch status {
	case "succeeded":
		return domain.ProviderSucceeded
	case "waiting_for_capture":
		return domain.ProviderRequiresCapture
	case "canceled":
		if details != nil && details.Party == "merchant" {
			return domain.ProviderCanceled
		}
		return domain.ProviderFailed
	default:
		return domain.ProviderPending
	}
}

func yooRefundStatus(status string) domain.ProviderStatus {
	switch status {
	case "succeeded":
		return domain.ProviderSucceeded
	case "canceled":
		return domain.ProviderFailed
	default:
		return domain.ProviderPending
	}
}
