package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart quantity bounds enforced on every add/update.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

type Cart struct {
	ID        string     `json:"id"`
	OwnerKey  string     `json:"-"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem is always re-joined against the live catalog on read; UnitPrice,
// ProductName, IsFree and Invalid reflect current product state, only Quantity
// is persisted.
type CartItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	IsFree      bool            `json:"isFree"`
	Invalid     bool            `json:"invalid,omitempty"`
}

// CartTotals is derived, never stored.
type CartTotals struct {
	ItemsCount int             `json:"itemsCount"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}
