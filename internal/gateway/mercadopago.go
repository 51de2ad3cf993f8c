package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain"
)

// MercadoPago drives the checkout-preferences API: create a preference,
// redirect the buyer to init_point. Webhooks carry a payment id which is
// resolved against /v1/payments before feeding the state machine.
type MercadoPago struct {
	apiBase     string
	accessToken string
	backURL     string
	client      *http.Client
	retries     uint64
	logger      *log.Logger
}

func NewMercadoPago(apiBase, accessToken, publicBaseURL string, timeout time.Duration, retries uint64, logger *log.Logger) *MercadoPago {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &MercadoPago{
		apiBase:     apiBase,
		accessToken: accessToken,
		backURL:     publicBaseURL + "/payments/mercadopago/return",
		client:      newHTTPClient(timeout),
		retries:     retries,
		logger:      logger,
	}
}

func (m *MercadoPago) Name() domain.PaymentMethod { return domain.PaymentMethodMercadoPago }

func (m *MercadoPago) CreatePayment(ctx context.Context, o *domain.Order) (*PaymentIntent, error) {
	items := make([]map[string]interface{}, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]interface{}{
			"id":         item.ProductID,
			"title":      item.ProductName,
			"quantity":   item.Quantity,
			"unit_price": item.Price.InexactFloat64(),
		})
	}
	payload, err := json.Marshal(map[string]interface{}{
		"external_reference": o.OrderNumber,
		"items":              items,
		"back_urls": map[string]string{
			"success": m.backURL + "?order=" + o.OrderNumber,
			"failure": m.backURL + "?order=" + o.OrderNumber,
			"pending": m.backURL + "?order=" + o.OrderNumber,
		},
		"auto_return": "approved",
	})
	if err != nil {
		return nil, err
	}

	var pref struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	err = withRetry(ctx, m.retries, func() error {
		req, err := newJSONRequest(ctx, http.MethodPost, m.apiBase+"/checkout/preferences", payload)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+m.accessToken)
		req.Header.Set("X-Idempotency-Key", "order-"+o.OrderNumber)

		code, body, err := doRequest(m.client, req, m.Name())
		if err != nil {
			return err
		}
		if code != http.StatusCreated && code != http.StatusOK {
			return declineErr(m.Name(), domain.ReasonGatewayError, fmt.Sprintf("create preference returned %d", code))
		}
		return json.Unmarshal(body, &pref)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Printf("mercadopago: created preference %s for %s", pref.ID, o.OrderNumber)
	return &PaymentIntent{GatewayOrderID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
}

func (m *MercadoPago) ConfirmPayment(ctx context.Context, payload []byte) (*Confirmation, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, declineErr(m.Name(), domain.ReasonInvalidData, "malformed webhook payload")
	}
	if event.Type != "payment" || event.Data.ID.String() == "" {
		return nil, declineErr(m.Name(), domain.ReasonInvalidData, "webhook payload is not a payment notification")
	}

	payment, err := m.fetchPayment(ctx, event.Data.ID.String())
	if err != nil {
		return nil, err
	}
	if payment.ExternalReference == "" {
		return nil, declineErr(m.Name(), domain.ReasonInvalidData, "payment missing external reference")
	}

	conf := &Confirmation{
		OrderNumber:   payment.ExternalReference,
		TransactionID: payment.ID.String(),
	}
	switch payment.Status {
	case "approved":
		conf.Status = StatusCompleted
	case "rejected":
		conf.Status = StatusFailed
		conf.Reason = mpRejectReason(payment.StatusDetail)
	case "cancelled":
		conf.Status = StatusFailed
		conf.Reason = domain.ReasonCancelled
	default:
		conf.Status = StatusPending
	}
	return conf, nil
}

func (m *MercadoPago) QueryStatus(ctx context.Context, gatewayOrderID string) (*PollResult, error) {
	var search struct {
		Results []mpPayment `json:"results"`
	}
	err := withRetry(ctx, m.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			m.apiBase+"/v1/payments/search?preference_id="+gatewayOrderID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+m.accessToken)

		code, body, err := doRequest(m.client, req, m.Name())
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return declineErr(m.Name(), domain.ReasonGatewayError, fmt.Sprintf("payment search returned %d", code))
		}
		return json.Unmarshal(body, &search)
	})
	if err != nil {
		return nil, err
	}

	if len(search.Results) == 0 {
		return &PollResult{Status: StatusPending}, nil
	}
	// The payment id found here is the same id the webhook notification
	// carries, so both paths settle the order under one payment id.
	payment := search.Results[0]
	result := &PollResult{Status: StatusPending, TransactionID: payment.ID.String()}
	switch payment.Status {
	case "approved":
		result.Status = StatusCompleted
	case "rejected", "cancelled":
		result.Status = StatusFailed
	}
	return result, nil
}

func (m *MercadoPago) fetchPayment(ctx context.Context, paymentID string) (*mpPayment, error) {
	var payment mpPayment
	err := withRetry(ctx, m.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase+"/v1/payments/"+paymentID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+m.accessToken)

		code, body, err := doRequest(m.client, req, m.Name())
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return declineErr(m.Name(), domain.ReasonGatewayError, fmt.Sprintf("get payment returned %d", code))
		}
		return json.Unmarshal(body, &payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func mpRejectReason(statusDetail string) domain.FailureReason {
	switch {
	case strings.Contains(statusDetail, "insufficient_amount"):
		return domain.ReasonInsufficientFunds
	case strings.Contains(statusDetail, "high_risk"):
		return domain.ReasonFraudDetected
	case strings.Contains(statusDetail, "date_error"), strings.Contains(statusDetail, "expired"):
		return domain.ReasonExpired
	case strings.Contains(statusDetail, "bad_filled"):
		return domain.ReasonInvalidData
	default:
		return domain.ReasonDeclined
	}
}
