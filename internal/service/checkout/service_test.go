package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	orderrepo "storefront/internal/repository/order"
)

type stubCartReader struct {
	items []domain.CartItem
	err   error
}

func (s *stubCartReader) Items(_ context.Context, _ string) ([]domain.CartItem, error) {
	return s.items, s.err
}

type stubProductRepo struct {
	products map[string]*domain.Product
}

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type stubMachine struct {
	repo      *orderrepo.MemoryRepo
	completed []string
	err       error
}

func (m *stubMachine) Complete(ctx context.Context, orderNumber, paymentID string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.completed = append(m.completed, paymentID)
	return m.repo.Transition(ctx, orderNumber, func(o *domain.Order) (*orderrepo.StatusChange, error) {
		id := paymentID
		return &orderrepo.StatusChange{Status: domain.PaymentStatusCompleted, PaymentID: &id}, nil
	})
}

type stubGateway struct {
	name      domain.PaymentMethod
	intent    *gateway.PaymentIntent
	createErr error
	created   []*domain.Order
}

func (g *stubGateway) Name() domain.PaymentMethod { return g.name }

func (g *stubGateway) CreatePayment(_ context.Context, o *domain.Order) (*gateway.PaymentIntent, error) {
	g.created = append(g.created, o)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.intent, nil
}

func (g *stubGateway) ConfirmPayment(_ context.Context, _ []byte) (*gateway.Confirmation, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) QueryStatus(_ context.Context, _ string) (*gateway.PollResult, error) {
	return nil, errors.New("not used")
}

func paidItem(id string, price string, qty int) domain.CartItem {
	return domain.CartItem{
		ProductID:   id,
		ProductName: "Plugin " + id,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func catalogFor(items ...domain.CartItem) *stubProductRepo {
	products := make(map[string]*domain.Product, len(items))
	for _, item := range items {
		products[item.ProductID] = &domain.Product{
			ID:       item.ProductID,
			Name:     item.ProductName,
			Price:    item.UnitPrice,
			IsFree:   item.IsFree,
			IsActive: true,
		}
	}
	return &stubProductRepo{products: products}
}

func TestPrepareEmptyCart(t *testing.T) {
	svc := New(&stubCartReader{}, &stubProductRepo{}, orderrepo.NewMemory(), &stubMachine{}, gateway.NewSelector(), decimal.Zero, nil)

	_, err := svc.Prepare(context.Background(), "sess-1")
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestPrepareAggregatesInvalidLines(t *testing.T) {
	carts := &stubCartReader{items: []domain.CartItem{
		{ProductID: "p1", Invalid: true},
		paidItem("p2", "10.00", 1),
		{ProductID: "p3", Invalid: true},
	}}
	svc := New(carts, &stubProductRepo{}, orderrepo.NewMemory(), &stubMachine{}, gateway.NewSelector(), decimal.Zero, nil)

	_, err := svc.Prepare(context.Background(), "sess-1")
	var violations domain.ValidationErrors
	if !errors.As(err, &violations) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
	if violations[0].ProductID != "p1" || violations[1].ProductID != "p3" {
		t.Fatalf("unexpected violation order: %+v", violations)
	}
}

func TestPrepareComputesTotals(t *testing.T) {
	carts := &stubCartReader{items: []domain.CartItem{paidItem("p1", "19.99", 2)}}
	svc := New(carts, &stubProductRepo{}, orderrepo.NewMemory(), &stubMachine{}, gateway.NewSelector(), decimal.RequireFromString("10"), nil)

	data, err := svc.Prepare(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := data.Totals.Total.StringFixed(2); got != "43.98" {
		t.Fatalf("expected total 43.98, got %s", got)
	}
	if !data.RequiresPayment {
		t.Fatal("expected RequiresPayment for paid cart")
	}
}

func TestPrepareFreeOnlyCart(t *testing.T) {
	free := domain.CartItem{ProductID: "p1", ProductName: "Free Plugin", Quantity: 1, UnitPrice: decimal.Zero, IsFree: true}
	carts := &stubCartReader{items: []domain.CartItem{free}}
	svc := New(carts, &stubProductRepo{}, orderrepo.NewMemory(), &stubMachine{}, gateway.NewSelector(), decimal.RequireFromString("10"), nil)

	data, err := svc.Prepare(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if data.RequiresPayment {
		t.Fatal("free-only cart must not require payment")
	}
}

func TestSubmitRequiresEmail(t *testing.T) {
	item := paidItem("p1", "10.00", 1)
	svc := New(&stubCartReader{}, catalogFor(item), orderrepo.NewMemory(), &stubMachine{}, gateway.NewSelector(), decimal.Zero, nil)
	data := &CheckoutData{OwnerKey: "sess-1", Items: []domain.CartItem{item}, RequiresPayment: true}

	_, err := svc.Submit(context.Background(), data, BuyerInfo{Name: "Ada"}, domain.PaymentMethodStripe)
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected email error, got %v", err)
	}
}

func TestSubmitFreeOrderCompletesImmediately(t *testing.T) {
	repo := orderrepo.NewMemory()
	machine := &stubMachine{repo: repo}
	free := domain.CartItem{ProductID: "p1", ProductName: "Free Plugin", Quantity: 1, UnitPrice: decimal.Zero, IsFree: true}
	svc := New(&stubCartReader{}, catalogFor(free), repo, machine, gateway.NewSelector(), decimal.Zero, nil)

	uid := "user-1"
	res, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey: "user:user-1",
		Items:    []domain.CartItem{free},
	}, BuyerInfo{UserID: &uid, Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Completed {
		t.Fatal("expected free order to complete")
	}
	if res.Order.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Order.PaymentStatus)
	}
	if len(machine.completed) != 1 || !strings.HasPrefix(machine.completed[0], "free-ORD-") {
		t.Fatalf("expected synthetic free payment id, got %v", machine.completed)
	}
}

func TestSubmitPaidOrderInitiatesGateway(t *testing.T) {
	repo := orderrepo.NewMemory()
	item := paidItem("p1", "19.99", 2)
	gw := &stubGateway{
		name:   domain.PaymentMethodStripe,
		intent: &gateway.PaymentIntent{GatewayOrderID: "pi_123", ClientSecret: "pi_123_secret"},
	}
	svc := New(&stubCartReader{}, catalogFor(item), repo, &stubMachine{repo: repo}, gateway.NewSelector(gw), decimal.Zero, nil)

	res, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		Totals:          domain.CartTotals{Total: decimal.RequireFromString("39.98")},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Completed {
		t.Fatal("paid order must not complete synchronously")
	}
	if res.ClientSecret != "pi_123_secret" {
		t.Fatalf("expected client secret, got %q", res.ClientSecret)
	}

	stored, err := repo.GetByNumber(context.Background(), res.Order.OrderNumber)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending, got %s", stored.PaymentStatus)
	}
	if stored.GatewayOrderID == nil || *stored.GatewayOrderID != "pi_123" {
		t.Fatalf("expected gateway order id stored, got %v", stored.GatewayOrderID)
	}
	if stored.CartOwnerKey != "sess-1" {
		t.Fatalf("expected cart owner key persisted, got %q", stored.CartOwnerKey)
	}
}

func TestSubmitSnapshotsLicenseTerms(t *testing.T) {
	repo := orderrepo.NewMemory()
	item := paidItem("p1", "19.99", 1)
	catalog := catalogFor(item)
	catalog.products["p1"].DownloadLimit = 5
	catalog.products["p1"].UpdateMonths = 12
	gw := &stubGateway{name: domain.PaymentMethodStripe, intent: &gateway.PaymentIntent{GatewayOrderID: "pi_123"}}
	svc := New(&stubCartReader{}, catalog, repo, &stubMachine{repo: repo}, gateway.NewSelector(gw), decimal.Zero, nil)

	res, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		Totals:          domain.CartTotals{Total: decimal.RequireFromString("19.99")},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A catalog edit after checkout must not reach this order's items.
	catalog.products["p1"].DownloadLimit = 1
	catalog.products["p1"].UpdateMonths = 0

	stored, err := repo.GetByNumber(context.Background(), res.Order.OrderNumber)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(stored.Items))
	}
	if stored.Items[0].DownloadLimit != 5 || stored.Items[0].UpdateMonths != 12 {
		t.Fatalf("expected purchase-time terms 5/12, got %d/%d",
			stored.Items[0].DownloadLimit, stored.Items[0].UpdateMonths)
	}
}

func TestSubmitGatewayFailureLeavesOrderPending(t *testing.T) {
	repo := orderrepo.NewMemory()
	item := paidItem("p1", "10.00", 1)
	gw := &stubGateway{name: domain.PaymentMethodStripe, createErr: errors.New("connection refused")}
	svc := New(&stubCartReader{}, catalogFor(item), repo, &stubMachine{repo: repo}, gateway.NewSelector(gw), decimal.Zero, nil)

	_, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		Totals:          domain.CartTotals{Total: decimal.RequireFromString("10.00")},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	if err == nil {
		t.Fatal("expected error from gateway failure")
	}
	if len(gw.created) != 1 {
		t.Fatalf("expected one createPayment attempt, got %d", len(gw.created))
	}

	stored, err := repo.GetByNumber(context.Background(), gw.created[0].OrderNumber)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending after gateway failure, got %s", stored.PaymentStatus)
	}
}

func TestSubmitRejectsPriceDrift(t *testing.T) {
	repo := orderrepo.NewMemory()
	item := paidItem("p1", "10.00", 1)
	catalog := catalogFor(item)
	catalog.products["p1"].Price = decimal.RequireFromString("12.00")
	svc := New(&stubCartReader{}, catalog, repo, &stubMachine{repo: repo}, gateway.NewSelector(), decimal.Zero, nil)

	_, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	var violations domain.ValidationErrors
	if !errors.As(err, &violations) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(violations) != 1 || !strings.Contains(violations[0].Reason, "price changed") {
		t.Fatalf("expected price drift violation, got %+v", violations)
	}
}

func TestSubmitRejectsDeactivatedProduct(t *testing.T) {
	repo := orderrepo.NewMemory()
	item := paidItem("p1", "10.00", 1)
	catalog := catalogFor(item)
	catalog.products["p1"].IsActive = false
	svc := New(&stubCartReader{}, catalog, repo, &stubMachine{repo: repo}, gateway.NewSelector(), decimal.Zero, nil)

	_, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	var violations domain.ValidationErrors
	if !errors.As(err, &violations) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
}

func TestSubmitRetriesDuplicateOrderNumber(t *testing.T) {
	repo := &duplicateOnceRepo{MemoryRepo: orderrepo.NewMemory()}
	item := paidItem("p1", "10.00", 1)
	gw := &stubGateway{name: domain.PaymentMethodStripe, intent: &gateway.PaymentIntent{GatewayOrderID: "pi_1"}}
	svc := New(&stubCartReader{}, catalogFor(item), repo, &stubMachine{}, gateway.NewSelector(gw), decimal.Zero, nil)

	res, err := svc.Submit(context.Background(), &CheckoutData{
		OwnerKey:        "sess-1",
		Items:           []domain.CartItem{item},
		Totals:          domain.CartTotals{Total: decimal.RequireFromString("10.00")},
		RequiresPayment: true,
	}, BuyerInfo{Name: "Ada", Email: "ada@example.com"}, domain.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if repo.attempts != 2 {
		t.Fatalf("expected 2 create attempts, got %d", repo.attempts)
	}
	if res.Order.OrderNumber == "" {
		t.Fatal("expected allocated order number")
	}
}

// duplicateOnceRepo fails the first CreateWithItems with a duplicate number.
type duplicateOnceRepo struct {
	*orderrepo.MemoryRepo
	attempts int
}

func (r *duplicateOnceRepo) CreateWithItems(ctx context.Context, o domain.Order, items []domain.OrderItem) (*domain.Order, error) {
	r.attempts++
	if r.attempts == 1 {
		return nil, domain.ErrDuplicateOrderNumber
	}
	return r.MemoryRepo.CreateWithItems(ctx, o, items)
}
