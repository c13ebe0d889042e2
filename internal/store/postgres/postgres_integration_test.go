package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("GEYIM_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GEYIM_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSaleAndReturnAdjustStockAndDebt(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	barcode := fmt.Sprintf("IT-%d", stamp)
	phone := fmt.Sprintf("+99450%d", stamp%10000000)
	saleNumber := fmt.Sprintf("S-IT%d", stamp)
	returnNumber := fmt.Sprintf("I-IT%d", stamp)

	var sizeID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO sizes (label) VALUES ($1) RETURNING id
	`, fmt.Sprintf("IT-%d", stamp)).Scan(&sizeID); err != nil {
		t.Fatalf("insert size: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		Barcode:        barcode,
		Name:           "Pencək IT",
		CostPriceCents: 4000,
		SalePriceCents: 7000,
	}, []domain.StockEntry{{SizeID: sizeID, Quantity: 5, MinimumQuantity: 1}})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	customer, err := s.CreateCustomer(ctx, domain.Customer{FirstName: "Nigar", LastName: "IT", Phone: phone})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM returns WHERE return_number = $1`, returnNumber)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE sale_number = $1`, saleNumber)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customer.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sizes WHERE id = $1`, sizeID)
	})

	if _, err := s.CreateSale(ctx, domain.Sale{
		SaleNumber:    saleNumber + "X",
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.SaleLine{{ProductID: product.ID, SizeID: sizeID, Quantity: 6}},
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		SaleNumber:    saleNumber,
		CustomerID:    &customer.ID,
		PaymentMethod: domain.PaymentCredit,
		DiscountCents: 1000,
		Lines:         []domain.SaleLine{{ProductID: product.ID, SizeID: sizeID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.FinalTotalCents != 13000 {
		t.Fatalf("expected final 13000, got %d", sale.FinalTotalCents)
	}

	if _, err := s.CreatePayment(ctx, domain.DebtPayment{CustomerID: customer.ID, AmountCents: 13001, Method: domain.PaymentCash}); !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	ret, err := s.CreateReturn(ctx, domain.Return{
		ReturnNumber: returnNumber,
		SaleID:       sale.ID,
		Lines:        []domain.ReturnLine{{ProductID: product.ID, SizeID: sizeID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.TotalCents != 7000 || ret.DebtCreditCents != 7000 {
		t.Fatalf("unexpected return totals %+v", ret)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM stock WHERE product_id = $1 AND size_id = $2
	`, product.ID, sizeID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 4 {
		t.Fatalf("expected stock 4 after sale and return, got %d", qty)
	}

	summary, err := s.GetDebtSummary(ctx, customer.ID)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	if summary.OutstandingCents != 6000 {
		t.Fatalf("expected outstanding 6000, got %d", summary.OutstandingCents)
	}

	if _, err := s.CreateReturn(ctx, domain.Return{
		ReturnNumber: returnNumber + "X",
		SaleID:       sale.ID,
		Lines:        []domain.ReturnLine{{ProductID: product.ID, SizeID: sizeID, Quantity: 2}},
	}); !errors.Is(err, store.ErrReturnExceedsSale) {
		t.Fatalf("expected ErrReturnExceedsSale, got %v", err)
	}

	if err := s.DeleteProduct(ctx, product.ID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected sold product to be in use, got %v", err)
	}
}
