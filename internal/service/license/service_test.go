package license

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	licenserepo "storefront/internal/repository/license"
)

func completedOrder(userID string) *domain.Order {
	uid := userID
	return &domain.Order{
		ID:          "order-1",
		OrderNumber: "ORD-20260101120000-abcd1234",
		UserID:      &uid,
		Items: []domain.OrderItem{
			{ProductID: "p1", ProductName: "Plugin One", Quantity: 1, DownloadLimit: 5, UpdateMonths: 12},
			{ProductID: "p2", ProductName: "Plugin Two", Quantity: 2, DownloadLimit: 3},
		},
	}
}

func TestGrantCreatesLicensePerItem(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)

	if err := svc.Grant(context.Background(), completedOrder("user-1")); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	licenses, err := repo.ListByOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(licenses) != 2 {
		t.Fatalf("expected 2 licenses, got %d", len(licenses))
	}

	l, err := repo.GetByUserAndProduct(context.Background(), "user-1", "p1")
	if err != nil {
		t.Fatalf("GetByUserAndProduct: %v", err)
	}
	if l.DownloadsLimit != 5 {
		t.Fatalf("expected download limit 5, got %d", l.DownloadsLimit)
	}
	if l.UpdatesUntil == nil {
		t.Fatal("expected updates window for p1")
	}
}

// The grant reads license terms from the order item snapshot. A catalog edit
// between purchase and completion must not change what the buyer receives.
func TestGrantUsesPurchaseTimeTerms(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	order := completedOrder("user-1")
	order.Items = []domain.OrderItem{
		{ProductID: "p1", ProductName: "Plugin One", Quantity: 1, DownloadLimit: 5, UpdateMonths: 12},
	}

	if err := svc.Grant(context.Background(), order); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	l, err := repo.GetByUserAndProduct(context.Background(), "user-1", "p1")
	if err != nil {
		t.Fatalf("GetByUserAndProduct: %v", err)
	}
	if l.DownloadsLimit != 5 {
		t.Fatalf("expected snapshot limit 5, got %d", l.DownloadsLimit)
	}
	want := time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)
	if l.UpdatesUntil == nil || !l.UpdatesUntil.Equal(want) {
		t.Fatalf("expected updates until %s, got %v", want, l.UpdatesUntil)
	}
}

func TestGrantIsIdempotent(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)
	order := completedOrder("user-1")

	for i := 0; i < 3; i++ {
		if err := svc.Grant(context.Background(), order); err != nil {
			t.Fatalf("Grant #%d: %v", i+1, err)
		}
	}

	licenses, err := repo.ListByOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(licenses) != 2 {
		t.Fatalf("expected 2 licenses after repeat grants, got %d", len(licenses))
	}
}

func TestGrantSkipsGuestOrders(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)

	order := completedOrder("user-1")
	order.UserID = nil

	if err := svc.Grant(context.Background(), order); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	licenses, err := repo.ListByOrder(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(licenses) != 0 {
		t.Fatalf("expected no licenses for guest order, got %d", len(licenses))
	}
}

func TestConsumeDownloadDecrementsQuota(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)

	if err := svc.Grant(context.Background(), completedOrder("user-1")); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	for want := 4; want >= 0; want-- {
		token, err := svc.ConsumeDownload(context.Background(), "user-1", "p1")
		if err != nil {
			t.Fatalf("ConsumeDownload: %v", err)
		}
		if token.Token == "" {
			t.Fatal("expected non-empty token")
		}
		if token.DownloadsRemaining != want {
			t.Fatalf("expected %d downloads remaining, got %d", want, token.DownloadsRemaining)
		}
	}

	_, err := svc.ConsumeDownload(context.Background(), "user-1", "p1")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestConsumeDownloadWithoutLicense(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)

	_, err := svc.ConsumeDownload(context.Background(), "user-1", "p1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Fifty concurrent consumers against a quota of five must produce exactly
// five tokens and forty-five quota errors, never an overshoot.
func TestConsumeDownloadConcurrent(t *testing.T) {
	repo := licenserepo.NewMemory()
	svc := New(repo, nil)

	if err := svc.Grant(context.Background(), completedOrder("user-1")); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.ConsumeDownload(context.Background(), "user-1", "p1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrQuotaExceeded):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful downloads, got %d", succeeded)
	}
	if exhausted != workers-5 {
		t.Fatalf("expected %d quota errors, got %d", workers-5, exhausted)
	}

	l, err := repo.GetByUserAndProduct(context.Background(), "user-1", "p1")
	if err != nil {
		t.Fatalf("GetByUserAndProduct: %v", err)
	}
	if l.DownloadsUsed != l.DownloadsLimit {
		t.Fatalf("downloads_used %d != limit %d", l.DownloadsUsed, l.DownloadsLimit)
	}
}
