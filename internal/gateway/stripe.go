package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/domain"
)

// Stripe drives the payment-intents API. The client confirms the intent with
// the returned client secret; completion arrives via webhook or poll.
type Stripe struct {
	apiBase string
	apiKey  string
	client  *http.Client
	retries uint64
	logger  *log.Logger
}

func NewStripe(apiBase, apiKey string, timeout time.Duration, retries uint64, logger *log.Logger) *Stripe {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Stripe{
		apiBase: apiBase,
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
		retries: retries,
		logger:  logger,
	}
}

func (s *Stripe) Name() domain.PaymentMethod { return domain.PaymentMethodStripe }

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Metadata     struct {
		OrderNumber string `json:"order_number"`
	} `json:"metadata"`
	LastPaymentError *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeAPIError struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) CreatePayment(ctx context.Context, o *domain.Order) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", o.TotalAmount.Mul(centsPerUnit).IntPart()))
	form.Set("currency", "usd")
	form.Set("metadata[order_number]", o.OrderNumber)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent stripeIntent
	err := withRetry(ctx, s.retries, func() error {
		req, err := newFormRequest(ctx, s.apiBase+"/v1/payment_intents", form)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		// Stable per order, so gateway-side retries cannot double-create.
		req.Header.Set("Idempotency-Key", "order-"+o.OrderNumber)

		code, body, err := doRequest(s.client, req, s.Name())
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return s.decodeError(code, body)
		}
		return json.Unmarshal(body, &intent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Printf("stripe: created intent %s for order %s", intent.ID, o.OrderNumber)
	return &PaymentIntent{GatewayOrderID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object stripeIntent `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ConfirmPayment(_ context.Context, payload []byte) (*Confirmation, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, declineErr(s.Name(), domain.ReasonInvalidData, "malformed webhook payload")
	}
	intent := event.Data.Object
	if intent.Metadata.OrderNumber == "" {
		return nil, declineErr(s.Name(), domain.ReasonInvalidData, "webhook payload missing order number")
	}

	conf := &Confirmation{
		OrderNumber:   intent.Metadata.OrderNumber,
		TransactionID: intent.ID,
	}
	switch event.Type {
	case "payment_intent.succeeded":
		conf.Status = StatusCompleted
	case "payment_intent.payment_failed":
		conf.Status = StatusFailed
		conf.Reason = domain.ReasonDeclined
		if intent.LastPaymentError != nil {
			conf.Reason = stripeDeclineReason(intent.LastPaymentError.DeclineCode, intent.LastPaymentError.Code)
		}
	case "payment_intent.canceled":
		conf.Status = StatusFailed
		conf.Reason = domain.ReasonCancelled
	default:
		conf.Status = StatusPending
	}
	return conf, nil
}

func (s *Stripe) QueryStatus(ctx context.Context, gatewayOrderID string) (*PollResult, error) {
	var intent stripeIntent
	err := withRetry(ctx, s.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/v1/payment_intents/"+gatewayOrderID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		code, body, err := doRequest(s.client, req, s.Name())
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return s.decodeError(code, body)
		}
		return json.Unmarshal(body, &intent)
	})
	if err != nil {
		return nil, err
	}

	result := &PollResult{Status: StatusPending, TransactionID: intent.ID}
	switch intent.Status {
	case "succeeded":
		result.Status = StatusCompleted
	case "canceled":
		result.Status = StatusFailed
	}
	return result, nil
}

func (s *Stripe) decodeError(code int, body []byte) error {
	var apiErr stripeAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Type == "card_error" {
		return declineErr(s.Name(), stripeDeclineReason(apiErr.Error.DeclineCode, apiErr.Error.Code), apiErr.Error.Message)
	}
	return declineErr(s.Name(), domain.ReasonGatewayError, fmt.Sprintf("unexpected status %d", code))
}

func stripeDeclineReason(declineCode, code string) domain.FailureReason {
	switch declineCode {
	case "insufficient_funds":
		return domain.ReasonInsufficientFunds
	case "fraudulent", "stolen_card", "lost_card":
		return domain.ReasonFraudDetected
	case "expired_card":
		return domain.ReasonExpired
	}
	if code == "expired_card" {
		return domain.ReasonExpired
	}
	return domain.ReasonDeclined
}
