package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func TestConcurrentSalesNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	p, size := seedProduct(t, s, "2000000000114", 5)

	const buyers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
		errs []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.Sale{
				SaleNumber:    fmt.Sprintf("S-RACE%04d", i),
				PaymentMethod: domain.PaymentCash,
				Lines:         []domain.SaleLine{{ProductID: p.ID, SizeID: size.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				sold++
			} else if !errors.Is(err, store.ErrInsufficientStock) {
				errs = append(errs, err)
			}
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected sale errors: %v", errs)
	}
	if sold != 5 {
		t.Fatalf("expected exactly 5 committed sales, got %d", sold)
	}
	if got := stockQty(t, s, p.ID, size.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	customer, err := s.CreateCustomer(ctx, domain.Customer{FirstName: "Nigar", LastName: "Həsənova", Phone: "+994507654321", InitialDebtCents: 1000})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	const payers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
		errs []error
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreatePayment(ctx, domain.DebtPayment{CustomerID: customer.ID, AmountCents: 300, Method: domain.PaymentCash})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				paid++
			} else if !errors.Is(err, store.ErrOverpayment) {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected payment errors: %v", errs)
	}
	if paid != 3 {
		t.Fatalf("expected exactly 3 accepted payments, got %d", paid)
	}
	summary, err := s.GetDebtSummary(ctx, customer.ID)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	if summary.OutstandingCents != 100 {
		t.Fatalf("expected 100 outstanding, got %d", summary.OutstandingCents)
	}
}
