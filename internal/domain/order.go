package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodStripe      PaymentMethod = "stripe"
	PaymentMethodPayPal      PaymentMethod = "paypal"
	PaymentMethodMercadoPago PaymentMethod = "mercadopago"
	PaymentMethodFree        PaymentMethod = "free"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodMercadoPago, PaymentMethodFree:
		return true
	}
	return false
}

// PaymentStatus is owned by the order state machine; every other component
// observes it read-only.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether no further transition out of the status is allowed,
// apart from completed -> refunded.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// FailureReason is the closed set recorded on failed transitions. It is used
// for user-facing messaging only and never affects state-machine behavior.
type FailureReason string

const (
	ReasonCancelled         FailureReason = "cancelled"
	ReasonDeclined          FailureReason = "declined"
	ReasonExpired           FailureReason = "expired"
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonNetworkError      FailureReason = "network_error"
	ReasonGatewayError      FailureReason = "gateway_error"
	ReasonFraudDetected     FailureReason = "fraud_detected"
	ReasonInvalidData       FailureReason = "invalid_data"
	ReasonUnknown           FailureReason = "unknown"
)

func (r FailureReason) Valid() bool {
	switch r {
	case ReasonCancelled, ReasonDeclined, ReasonExpired, ReasonInsufficientFunds,
		ReasonNetworkError, ReasonGatewayError, ReasonFraudDetected, ReasonInvalidData, ReasonUnknown:
		return true
	}
	return false
}

// Retryable reports whether the user should be offered a retry path rather
// than escalation to support.
func (r FailureReason) Retryable() bool {
	return r != ReasonFraudDetected
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	UserID        *string         `json:"userId,omitempty"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	FailureReason *FailureReason  `json:"failureReason,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	// CartOwnerKey ties the order back to the cart it was created from so the
	// cart can be cleared once the order completes.
	CartOwnerKey   string  `json:"-"`
	GatewayOrderID *string `json:"-"`
	// PaymentID is the gateway transaction reference; set at most once, it is
	// the idempotency anchor for completion signals.
	PaymentID *string     `json:"paymentId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Items     []OrderItem `json:"items,omitempty"`
}

// OrderItem is immutable once created; ProductName, Price and the license
// terms are snapshots taken at purchase time, so later catalog edits do not
// change what an already-placed order entitles the buyer to.
type OrderItem struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	IsFree        bool            `json:"isFree"`
	DownloadLimit int             `json:"downloadLimit"`
	UpdateMonths  int             `json:"updateMonths"`
}
