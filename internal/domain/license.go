package domain

import "time"

// UserLicense entitles a user to download/update a purchased product.
// Exactly one active license exists per (user_id, product_id, order_id);
// re-granting for the same order is a no-op.
type UserLicense struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	ProductID      string     `json:"productId"`
	OrderID        string     `json:"orderId"`
	DownloadsUsed  int        `json:"downloadsUsed"`
	DownloadsLimit int        `json:"downloadsLimit"`
	UpdatesUntil   *time.Time `json:"updatesUntil,omitempty"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// UpdatesExpired reports whether the license is past its update window.
// A nil UpdatesUntil means unlimited updates.
func (l UserLicense) UpdatesExpired(now time.Time) bool {
	return l.UpdatesUntil != nil && now.After(*l.UpdatesUntil)
}

// DownloadToken is handed back on a successful quota consumption.
type DownloadToken struct {
	Token              string    `json:"token"`
	ProductID          string    `json:"productId"`
	DownloadsRemaining int       `json:"downloadsRemaining"`
	IssuedAt           time.Time `json:"issuedAt"`
}
