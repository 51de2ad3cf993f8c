package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"storefront/internal/domain"
)

// PayPal drives the checkout-orders API: create an order, redirect the buyer
// to the approval link, capture on return. QueryStatus captures an approved
// order so the return-URL and poll paths converge on the same state.
type PayPal struct {
	apiBase   string
	clientID  string
	secret    string
	returnURL string
	cancelURL string
	client    *http.Client
	retries   uint64
	logger    *log.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPal(apiBase, clientID, secret, publicBaseURL string, timeout time.Duration, retries uint64, logger *log.Logger) *PayPal {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PayPal{
		apiBase:   apiBase,
		clientID:  clientID,
		secret:    secret,
		returnURL: publicBaseURL + "/payments/paypal/return",
		cancelURL: publicBaseURL + "/payments/paypal/cancel",
		client:    newHTTPClient(timeout),
		retries:   retries,
		logger:    logger,
	}
}

func (p *PayPal) Name() domain.PaymentMethod { return domain.PaymentMethodPayPal }

func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := newFormRequest(ctx, p.apiBase+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.secret)

	code, body, err := doRequest(p.client, req, p.Name())
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", declineErr(p.Name(), domain.ReasonGatewayError, fmt.Sprintf("token request returned %d", code))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", declineErr(p.Name(), domain.ReasonGatewayError, "malformed token response")
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (p *PayPal) CreatePayment(ctx context.Context, o *domain.Order) (*PaymentIntent, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": o.OrderNumber,
			"custom_id":    o.OrderNumber,
			"amount": map[string]string{
				"currency_code": "USD",
				"value":         o.TotalAmount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"return_url": p.returnURL + "?order=" + url.QueryEscape(o.OrderNumber),
			"cancel_url": p.cancelURL + "?order=" + url.QueryEscape(o.OrderNumber),
		},
	})
	if err != nil {
		return nil, err
	}

	var created paypalOrder
	err = withRetry(ctx, p.retries, func() error {
		tok, err := p.token(ctx)
		if err != nil {
			return err
		}
		req, err := newJSONRequest(ctx, http.MethodPost, p.apiBase+"/v2/checkout/orders", payload)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("PayPal-Request-Id", "order-"+o.OrderNumber)

		code, body, err := doRequest(p.client, req, p.Name())
		if err != nil {
			return err
		}
		if code != http.StatusCreated && code != http.StatusOK {
			return declineErr(p.Name(), domain.ReasonGatewayError, fmt.Sprintf("create order returned %d", code))
		}
		return json.Unmarshal(body, &created)
	})
	if err != nil {
		return nil, err
	}

	approve := ""
	for _, link := range created.Links {
		if link.Rel == "approve" {
			approve = link.Href
		}
	}
	if approve == "" {
		return nil, declineErr(p.Name(), domain.ReasonGatewayError, "create order response missing approval link")
	}

	p.logger.Printf("paypal: created order %s for %s", created.ID, o.OrderNumber)
	return &PaymentIntent{GatewayOrderID: created.ID, RedirectURL: approve}, nil
}

type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CustomID          string `json:"custom_id"`
		SupplementaryData *struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		PurchaseUnits []struct {
			ReferenceID string `json:"reference_id"`
			CustomID    string `json:"custom_id"`
		} `json:"purchase_units"`
	} `json:"resource"`
}

func (p *PayPal) ConfirmPayment(_ context.Context, payload []byte) (*Confirmation, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, declineErr(p.Name(), domain.ReasonInvalidData, "malformed webhook payload")
	}

	orderNumber := event.Resource.CustomID
	if orderNumber == "" && len(event.Resource.PurchaseUnits) > 0 {
		orderNumber = event.Resource.PurchaseUnits[0].CustomID
		if orderNumber == "" {
			orderNumber = event.Resource.PurchaseUnits[0].ReferenceID
		}
	}
	if orderNumber == "" {
		return nil, declineErr(p.Name(), domain.ReasonInvalidData, "webhook payload missing order reference")
	}

	// Anchor on the paypal order id so webhook and poll confirmations agree.
	txID := event.Resource.ID
	if event.Resource.SupplementaryData != nil && event.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		txID = event.Resource.SupplementaryData.RelatedIDs.OrderID
	}

	conf := &Confirmation{OrderNumber: orderNumber, TransactionID: txID}
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		conf.Status = StatusCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		conf.Status = StatusFailed
		conf.Reason = domain.ReasonDeclined
	case "CHECKOUT.ORDER.VOIDED":
		conf.Status = StatusFailed
		conf.Reason = domain.ReasonCancelled
	default:
		conf.Status = StatusPending
	}
	return conf, nil
}

func (p *PayPal) QueryStatus(ctx context.Context, gatewayOrderID string) (*PollResult, error) {
	var current paypalOrder
	err := withRetry(ctx, p.retries, func() error {
		tok, err := p.token(ctx)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v2/checkout/orders/"+gatewayOrderID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)

		code, body, err := doRequest(p.client, req, p.Name())
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return declineErr(p.Name(), domain.ReasonGatewayError, fmt.Sprintf("get order returned %d", code))
		}
		return json.Unmarshal(body, &current)
	})
	if err != nil {
		return nil, err
	}

	// An approved order has buyer consent but no money moved; capture now so
	// the return-URL and poll paths complete the same way.
	if current.Status == "APPROVED" {
		captured, err := p.capture(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}
		current.Status = captured.Status
	}

	// Webhooks anchor on the checkout-order id, so the poll does too.
	result := &PollResult{Status: StatusPending, TransactionID: gatewayOrderID}
	switch current.Status {
	case "COMPLETED":
		result.Status = StatusCompleted
	case "VOIDED", "CANCELLED":
		result.Status = StatusFailed
	}
	return result, nil
}

func (p *PayPal) capture(ctx context.Context, gatewayOrderID string) (*paypalOrder, error) {
	var captured paypalOrder
	err := withRetry(ctx, p.retries, func() error {
		tok, err := p.token(ctx)
		if err != nil {
			return err
		}
		req, err := newJSONRequest(ctx, http.MethodPost, p.apiBase+"/v2/checkout/orders/"+gatewayOrderID+"/capture", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("PayPal-Request-Id", "capture-"+gatewayOrderID)

		code, body, err := doRequest(p.client, req, p.Name())
		if err != nil {
			return err
		}
		if code != http.StatusCreated && code != http.StatusOK {
			return declineErr(p.Name(), domain.ReasonDeclined, fmt.Sprintf("capture returned %d", code))
		}
		return json.Unmarshal(body, &captured)
	})
	if err != nil {
		return nil, err
	}
	p.logger.Printf("paypal: captured order %s status=%s", gatewayOrderID, captured.Status)
	return &captured, nil
}
