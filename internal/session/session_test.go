package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func newState(t *testing.T) *State {
	t.Helper()
	m := NewManager(time.Hour)
	t.Cleanup(m.Close)
	return m.Get(domain.Actor{UserID: 2, Username: "worker", Role: domain.RoleWorker})
}

func TestCartMergesSameProductAndSize(t *testing.T) {
	st := newState(t)
	if _, err := st.AddToCart(domain.CartLine{ProductID: 1, SizeID: 3, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.AddToCart(domain.CartLine{ProductID: 2, SizeID: 3, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := st.AddToCart(domain.CartLine{ProductID: 1, SizeID: 3, Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(cart) != 2 || cart[0].Quantity != 3 {
		t.Fatalf("expected merged first line with qty 3, got %+v", cart)
	}

	if _, err := st.SetQuantity(2, 3, 0); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := st.RemoveFromCart(9, 9); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	cart, _ = st.RemoveFromCart(1, 3)
	if len(cart) != 1 || cart[0].ProductID != 2 {
		t.Fatalf("unexpected cart after remove %+v", cart)
	}
}

func TestCheckoutClearsCartOnlyOnSuccess(t *testing.T) {
	st := newState(t)
	ctx := context.Background()
	if _, err := st.Checkout(ctx, domain.CartCheckoutRequest{}, nil); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected empty cart rejection, got %v", err)
	}

	_, _ = st.AddToCart(domain.CartLine{ProductID: 1, SizeID: 3, Quantity: 2})
	failing := func(context.Context, domain.SaleCreateRequest) (domain.Sale, error) {
		return domain.Sale{}, store.ErrInsufficientStock
	}
	if _, err := st.Checkout(ctx, domain.CartCheckoutRequest{PaymentMethod: domain.PaymentCash}, failing); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected submit error, got %v", err)
	}
	if len(st.Cart()) != 1 {
		t.Fatalf("expected cart unchanged after rejection")
	}

	var submitted domain.SaleCreateRequest
	ok := func(_ context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
		submitted = req
		return domain.Sale{ID: 7, SaleNumber: "S-0000ABCD"}, nil
	}
	sale, err := st.Checkout(ctx, domain.CartCheckoutRequest{PaymentMethod: domain.PaymentCard, DiscountCents: 100}, ok)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if sale.ID != 7 || len(st.Cart()) != 0 {
		t.Fatalf("expected cleared cart after commit")
	}
	if len(submitted.Lines) != 1 || submitted.Lines[0].Quantity != 2 || submitted.PaymentMethod != domain.PaymentCard || submitted.DiscountCents != 100 {
		t.Fatalf("unexpected submitted request %+v", submitted)
	}
}

func TestManagerKeepsOneStatePerUser(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Close()

	a := m.Get(domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	b := m.Get(domain.Actor{Username: "admin", Role: domain.RoleWorker})
	if a != b {
		t.Fatalf("expected the same state for one user")
	}
	if b.Identity().Role != domain.RoleWorker {
		t.Fatalf("expected refreshed identity")
	}
	m.End("admin")
	if _, ok := m.Lookup("admin"); ok {
		t.Fatalf("expected state to be discarded")
	}
}
