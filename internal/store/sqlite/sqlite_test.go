package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "geyim.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProduct(t *testing.T, s *Store, barcode string, qty int) (*domain.Product, domain.Size) {
	t.Helper()
	sizes, err := s.ListSizes(context.Background())
	if err != nil || len(sizes) == 0 {
		t.Fatalf("list sizes: %v", err)
	}
	size := sizes[0]
	product, err := s.CreateProduct(context.Background(), domain.Product{
		Barcode:        barcode,
		Name:           "Pencək " + barcode,
		CostPriceCents: 4000,
		SalePriceCents: 7000,
	}, []domain.StockEntry{{SizeID: size.ID, Quantity: qty, MinimumQuantity: 1}})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product, size
}

func stockQty(t *testing.T, s *Store, productID, sizeID int64) int {
	t.Helper()
	entries, err := s.ListStockForProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	for _, e := range entries {
		if e.SizeID == sizeID {
			return e.Quantity
		}
	}
	return -1
}

func TestOpenSeedsCatalogAndAccounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	categories, err := s.ListCategories(ctx)
	if err != nil || len(categories) != len(store.SeedCategories) {
		t.Fatalf("expected %d seeded categories, got %d (%v)", len(store.SeedCategories), len(categories), err)
	}
	admin, err := s.GetUserByUsername(ctx, "ADMIN")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if admin.Role != domain.RoleAdmin || !admin.Active {
		t.Fatalf("unexpected admin account %+v", admin)
	}
	sizes, _ := s.ListSizes(ctx)
	if sizes[0].Label != "XS" || sizes[len(sizes)-1].Label != "52" {
		t.Fatalf("unexpected size order %q..%q", sizes[0].Label, sizes[len(sizes)-1].Label)
	}
}

func TestCreateSaleAndReturnAdjustStockAndDebt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, size := seedProduct(t, s, "2000000000103", 5)
	customer, err := s.CreateCustomer(ctx, domain.Customer{FirstName: "Leyla", LastName: "Məmmədova", Phone: "+994501112233"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		SaleNumber:    "S-SQL00001",
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.SaleLine{{ProductID: p.ID, SizeID: size.ID, Quantity: 6}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		SaleNumber:    "S-SQL00002",
		CustomerID:    &customer.ID,
		PaymentMethod: domain.PaymentCredit,
		DiscountCents: 1000,
		Lines:         []domain.SaleLine{{ProductID: p.ID, SizeID: size.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.FinalTotalCents != 13000 || sale.CustomerName != "Leyla Məmmədova" {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if got := stockQty(t, s, p.ID, size.ID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	if _, err := s.CreatePayment(ctx, domain.DebtPayment{CustomerID: customer.ID, AmountCents: 13001, Method: domain.PaymentCash}); !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	ret, err := s.CreateReturn(ctx, domain.Return{
		ReturnNumber: "I-SQL00001",
		SaleID:       sale.ID,
		Lines:        []domain.ReturnLine{{ProductID: p.ID, SizeID: size.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.TotalCents != 7000 || ret.DebtCreditCents != 7000 {
		t.Fatalf("unexpected return amounts %d/%d", ret.TotalCents, ret.DebtCreditCents)
	}
	if got := stockQty(t, s, p.ID, size.ID); got != 4 {
		t.Fatalf("expected stock 4 after return, got %d", got)
	}

	summary, err := s.GetDebtSummary(ctx, customer.ID)
	if err != nil {
		t.Fatalf("debt summary: %v", err)
	}
	if summary.OutstandingCents != 6000 {
		t.Fatalf("expected outstanding 6000, got %d", summary.OutstandingCents)
	}

	_, err = s.CreateReturn(ctx, domain.Return{
		ReturnNumber: "I-SQL00002",
		SaleID:       sale.ID,
		Lines:        []domain.ReturnLine{{ProductID: p.ID, SizeID: size.ID, Quantity: 2}},
	})
	if !errors.Is(err, store.ErrReturnExceedsSale) {
		t.Fatalf("expected ErrReturnExceedsSale, got %v", err)
	}

	stored, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.ReturnStatus != domain.ReturnStatusPartial || stored.Lines[0].ReturnedQuantity != 1 {
		t.Fatalf("unexpected return state %q / %d", stored.ReturnStatus, stored.Lines[0].ReturnedQuantity)
	}

	if err := s.DeleteProduct(ctx, p.ID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse deleting sold product, got %v", err)
	}
	if err := s.DeleteCustomer(ctx, customer.ID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse deleting indebted customer, got %v", err)
	}
}

func TestSetStockRecordsAdjustMovement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, size := seedProduct(t, s, "2000000000110", 5)

	entry, err := s.SetStock(ctx, p.ID, size.ID, 2, 3)
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if entry.Quantity != 2 || entry.MinimumQuantity != 3 || !entry.Low() {
		t.Fatalf("unexpected entry %+v", entry)
	}
	movements, err := s.ListStockMovements(ctx, domain.MovementFilter{ProductID: p.ID})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 2 || movements[0].Source != domain.SourceStockAdjust || movements[0].Kind != domain.MovementOut || movements[0].Quantity != 3 {
		t.Fatalf("unexpected movements %+v", movements)
	}
	if _, err := s.SetStock(ctx, p.ID, size.ID, -1, 0); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	low, err := s.ListLowStock(ctx)
	if err != nil || len(low) != 1 {
		t.Fatalf("expected one low entry, got %d (%v)", len(low), err)
	}
}

func TestAddStockNegativeDeltaCannotGoBelowZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, size := seedProduct(t, s, "2000000000145", 3)

	if _, err := s.AddStock(ctx, p.ID, size.ID, -4, 0); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockQty(t, s, p.ID, size.ID); got != 3 {
		t.Fatalf("failed decrement must leave stock at 3, got %d", got)
	}
	entry, err := s.AddStock(ctx, p.ID, size.ID, -3, 0)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if entry.Quantity != 0 {
		t.Fatalf("expected empty entry, got %+v", entry)
	}
	movements, err := s.ListStockMovements(ctx, domain.MovementFilter{ProductID: p.ID})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 2 || movements[0].Kind != domain.MovementOut || movements[0].Source != domain.SourceStockAdjust || movements[0].After != 0 {
		t.Fatalf("unexpected movements %+v", movements)
	}
}

func TestCatalogUniquenessAndReferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, size := seedProduct(t, s, "2000000000127", 1)

	if _, err := s.CreateCategory(ctx, "şalvar"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected case-insensitive duplicate category, got %v", err)
	}
	if err := s.DeleteSize(ctx, size.ID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse deleting stocked size, got %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{Barcode: p.Barcode, Name: "x", CostPriceCents: 1, SalePriceCents: 2}, nil); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate barcode, got %v", err)
	}
	if err := s.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete unsold product: %v", err)
	}
	if err := s.DeleteSize(ctx, size.ID); err != nil {
		t.Fatalf("delete freed size: %v", err)
	}
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	admin, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	admin.Role = domain.RoleWorker
	if _, err := s.UpdateUser(ctx, *admin); !errors.Is(err, store.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	if err := s.DeleteUser(ctx, admin.ID); !errors.Is(err, store.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin on delete, got %v", err)
	}
}

func TestResetKeepsUsersAndSizes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "2000000000134", 3)
	if _, err := s.SaveSettings(ctx, domain.Settings{StoreName: "Butik", SizesEnabled: false}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	products, _ := s.ListProducts(ctx)
	if len(products) != 0 {
		t.Fatalf("expected no products, got %d", len(products))
	}
	categories, _ := s.ListCategories(ctx)
	if len(categories) != len(store.ResetCategories) {
		t.Fatalf("expected %d categories after reset, got %d", len(store.ResetCategories), len(categories))
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected users kept, got %d", len(users))
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.StoreName != domain.DefaultSettings().StoreName || !settings.SizesEnabled {
		t.Fatalf("expected default settings, got %+v", settings)
	}
}
