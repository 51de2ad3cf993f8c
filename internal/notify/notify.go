// Package notify is the fire-and-forget notification boundary. Delivery
// failures are logged and never roll back an order or a license grant.
package notify

import (
	"io"
	"log"

	"storefront/internal/domain"
)

type Sink interface {
	SendOrderConfirmation(order domain.Order, items []domain.OrderItem)
	NotifyPaymentFailed(order domain.Order, reason domain.FailureReason)
}

// LogSink writes notifications to a logger; it stands in for the external
// mail/messaging collaborator.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) SendOrderConfirmation(order domain.Order, items []domain.OrderItem) {
	s.logger.Printf("notify: order %s confirmed for %s (%d items, total %s)",
		order.OrderNumber, order.CustomerEmail, len(items), order.TotalAmount.StringFixed(2))
}

func (s *LogSink) NotifyPaymentFailed(order domain.Order, reason domain.FailureReason) {
	s.logger.Printf("notify: order %s payment failed for %s reason=%s",
		order.OrderNumber, order.CustomerEmail, reason)
}
