package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"geyim/backend/internal/alerts"
	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
	"geyim/backend/internal/store/memory"
)

type recordedEvent struct {
	kind string
	data any
}

type recordingPublisher struct {
	events []recordedEvent
}

func (p *recordingPublisher) Publish(kind string, data any) {
	p.events = append(p.events, recordedEvent{kind, data})
}

func (p *recordingPublisher) count(kind string) int {
	n := 0
	for _, e := range p.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type countingCache struct {
	stored      []domain.DebtSummary
	hit         bool
	invalidated int
}

func (c *countingCache) Get(context.Context, string) ([]domain.DebtSummary, bool, error) {
	return c.stored, c.hit, nil
}

func (c *countingCache) Set(_ context.Context, _ string, value []domain.DebtSummary, _ time.Duration) error {
	c.stored = value
	c.hit = true
	return nil
}

func (c *countingCache) Invalidate(context.Context, ...string) error {
	c.invalidated++
	c.stored = nil
	c.hit = false
	return nil
}

func newTestService() *Service {
	return New(memory.NewSeeded(), Options{})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func workerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "worker", Role: domain.RoleWorker})
}

func sizeByLabel(t *testing.T, svc *Service, label string) domain.Size {
	t.Helper()
	sizes, err := svc.ListSizes(context.Background())
	if err != nil {
		t.Fatalf("list sizes: %v", err)
	}
	for _, s := range sizes {
		if s.Label == label {
			return s
		}
	}
	t.Fatalf("size %s not seeded", label)
	return domain.Size{}
}

func createProduct(t *testing.T, svc *Service, barcode string, sizeID int64, qty int) domain.Product {
	t.Helper()
	minimum := 2
	p, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Barcode:        barcode,
		Name:           "Köynək " + barcode,
		CostPriceCents: 4000,
		SalePriceCents: 10000,
		Stock:          []domain.StockInput{{SizeID: sizeID, Quantity: qty, MinimumQuantity: &minimum}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func createCustomer(t *testing.T, svc *Service, phone string, initialDebt int64) domain.Customer {
	t.Helper()
	c, err := svc.CreateCustomer(workerCtx(), domain.CustomerCreateRequest{
		FirstName:        "Aysel",
		LastName:         "Quliyeva",
		Phone:            phone,
		InitialDebtCents: initialDebt,
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func TestSizesAreListedInDisplayOrder(t *testing.T) {
	svc := New(memory.New(), Options{})
	ctx := adminCtx()
	for _, label := range []string{"M", "40", "S", "38", "L"} {
		if _, err := svc.CreateSize(ctx, domain.SizeRequest{Label: label}); err != nil {
			t.Fatalf("create size %s: %v", label, err)
		}
	}
	sizes, err := svc.ListSizes(ctx)
	if err != nil {
		t.Fatalf("list sizes: %v", err)
	}
	want := []string{"S", "M", "L", "38", "40"}
	for i, s := range sizes {
		if s.Label != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], s.Label)
		}
	}
}

func TestCatalogAdministrationRequiresAdmin(t *testing.T) {
	svc := newTestService()
	if _, err := svc.CreateCategory(workerCtx(), domain.NameRequest{Name: "Jilet"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.CreateProduct(workerCtx(), domain.ProductCreateRequest{Name: "x", CostPriceCents: 1, SalePriceCents: 2}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for product create, got %v", err)
	}
	if _, err := svc.CreateColor(adminCtx(), domain.ColorRequest{Name: "Bej", HexCode: "beige"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid hex code, got %v", err)
	}
}

func TestCreateProductGeneratesBarcodeAndHidesCostFromWorkers(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")

	p, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Pencək",
		CostPriceCents: 5000,
		SalePriceCents: 9000,
		Stock:          []domain.StockInput{{SizeID: m.ID, Quantity: 0}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !domain.ValidEAN13(p.Barcode) || p.Barcode[:3] != "200" {
		t.Fatalf("expected generated in-store EAN-13, got %q", p.Barcode)
	}

	entries, err := svc.ListStockForProduct(adminCtx(), p.ID)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	if len(entries) != 1 || entries[0].Quantity != 0 || entries[0].MinimumQuantity != domain.DefaultEditStockMinimum {
		t.Fatalf("expected explicit zero entry with edit minimum, got %+v", entries)
	}

	lookup, err := svc.LookupBarcode(workerCtx(), p.Barcode)
	if err != nil || !lookup.Found {
		t.Fatalf("lookup: %+v %v", lookup, err)
	}
	if lookup.Product.CostPriceCents != 0 {
		t.Fatalf("expected cost hidden from worker, got %d", lookup.Product.CostPriceCents)
	}
	missing, err := svc.LookupBarcode(workerCtx(), "0000000000000")
	if err != nil || missing.Found {
		t.Fatalf("expected neutral not-found result, got %+v %v", missing, err)
	}
}

func TestCreateSaleMergesLinesAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000011", m.ID, 5)

	sale, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		DiscountCents: 500,
		Lines: []domain.SaleLineInput{
			{ProductID: p.ID, SizeID: m.ID, Quantity: 1},
			{ProductID: p.ID, SizeID: m.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !regexp.MustCompile(`^S-[0-9A-F]{8}$`).MatchString(sale.SaleNumber) {
		t.Fatalf("unexpected sale number %q", sale.SaleNumber)
	}
	if len(sale.Lines) != 1 || sale.Lines[0].Quantity != 3 {
		t.Fatalf("expected one merged line of 3, got %+v", sale.Lines)
	}
	if sale.GrossTotalCents != 30000 || sale.FinalTotalCents != 29500 {
		t.Fatalf("unexpected totals %d/%d", sale.GrossTotalCents, sale.FinalTotalCents)
	}
	if sale.Lines[0].UnitCostCents != 0 {
		t.Fatalf("expected cost hidden from worker")
	}
	if sale.CreatedBy != "worker" {
		t.Fatalf("expected created_by worker, got %q", sale.CreatedBy)
	}

	entries, _ := svc.ListStockForProduct(adminCtx(), p.ID)
	if entries[0].Quantity != 2 {
		t.Fatalf("expected stock 2, got %d", entries[0].Quantity)
	}
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	l := sizeByLabel(t, svc, "L")
	a := createProduct(t, svc, "2000000000028", m.ID, 5)
	b := createProduct(t, svc, "2000000000035", l.ID, 1)

	_, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{
		PaymentMethod: "card",
		Lines: []domain.SaleLineInput{
			{ProductID: a.ID, SizeID: m.ID, Quantity: 2},
			{ProductID: b.ID, SizeID: l.ID, Quantity: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	entries, _ := svc.ListStockForProduct(adminCtx(), a.ID)
	if entries[0].Quantity != 5 {
		t.Fatalf("expected untouched stock 5, got %d", entries[0].Quantity)
	}
	sales, _ := svc.ListSales(adminCtx(), "", "")
	if len(sales) != 0 {
		t.Fatalf("expected no sale recorded, got %d", len(sales))
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000042", m.ID, 5)
	line := []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 1}}

	cases := []domain.SaleCreateRequest{
		{PaymentMethod: "credit", Lines: line},
		{PaymentMethod: "bitcoin", Lines: line},
		{PaymentMethod: "cash", Lines: line, DiscountCents: -1},
		{PaymentMethod: "cash", Lines: line, DiscountCents: 10001},
		{PaymentMethod: "cash"},
		{PaymentMethod: "cash", Lines: []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 0}}},
		{PaymentMethod: "cash", Lines: []domain.SaleLineInput{
			{ProductID: p.ID, SizeID: m.ID, Quantity: -2},
			{ProductID: p.ID, SizeID: m.ID, Quantity: 3},
		}},
		{PaymentMethod: "cash", Lines: []domain.SaleLineInput{
			{ProductID: p.ID, SizeID: m.ID, Quantity: 1, UnitPriceCents: -500},
			{ProductID: p.ID, SizeID: m.ID, Quantity: 1},
		}},
	}
	for i, req := range cases {
		if _, err := svc.CreateSale(workerCtx(), req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("case %d: expected ErrInvalidTransaction, got %v", i, err)
		}
	}

	stock, err := svc.ListStockForProduct(workerCtx(), p.ID)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	if len(stock) != 1 || stock[0].Quantity != 5 {
		t.Fatalf("rejected sales must not touch stock, got %+v", stock)
	}
}

func TestCreateReturnValidatesEveryLineBeforeMerging(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000107", m.ID, 5)
	sale, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{
		PaymentMethod: domain.PaymentCash,
		Lines:         []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	_, err = svc.CreateReturn(workerCtx(), domain.ReturnCreateRequest{
		SaleID: sale.ID,
		Lines: []domain.ReturnLineInput{
			{ProductID: p.ID, SizeID: m.ID, Quantity: -1},
			{ProductID: p.ID, SizeID: m.ID, Quantity: 2},
		},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
	stock, _ := svc.ListStockForProduct(workerCtx(), p.ID)
	if len(stock) != 1 || stock[0].Quantity != 3 {
		t.Fatalf("rejected return must not touch stock, got %+v", stock)
	}
}

func TestCreditSaleReturnAndPaymentsKeepDebtConsistent(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000059", m.ID, 5)
	c := createCustomer(t, svc, "+994551234567", 2000)
	ctx := workerCtx()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID:    &c.ID,
		PaymentMethod: domain.PaymentCredit,
		Lines:         []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}

	debt, _ := svc.OutstandingDebt(ctx, c.ID)
	if debt.OutstandingCents != 22000 {
		t.Fatalf("expected outstanding 22000, got %d", debt.OutstandingCents)
	}

	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{CustomerID: c.ID, AmountCents: 22001, Method: "cash"}); !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{CustomerID: c.ID, AmountCents: 5000, Method: "return"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected return method rejected, got %v", err)
	}
	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{CustomerID: c.ID, AmountCents: 15000, Method: "card"}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleNumber: sale.SaleNumber,
		Lines:      []domain.ReturnLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if ret.TotalCents != 10000 || ret.DebtCreditCents != 7000 {
		t.Fatalf("expected credit capped at outstanding 7000, got total=%d credit=%d", ret.TotalCents, ret.DebtCreditCents)
	}

	debt, _ = svc.OutstandingDebt(ctx, c.ID)
	if debt.OutstandingCents != 0 {
		t.Fatalf("expected settled debt, got %d", debt.OutstandingCents)
	}
	payments, _ := svc.CustomerPayments(ctx, c.ID)
	if len(payments) != 2 {
		t.Fatalf("expected payment and return credit, got %d", len(payments))
	}

	details, _ := svc.GetSale(ctx, sale.ID)
	if details.ReturnStatus != domain.ReturnStatusPartial || details.Lines[0].ReturnedQuantity != 1 {
		t.Fatalf("unexpected sale state %+v", details)
	}
	if _, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.ID,
		Lines:  []domain.ReturnLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 2}},
	}); !errors.Is(err, store.ErrReturnExceedsSale) {
		t.Fatalf("expected ErrReturnExceedsSale, got %v", err)
	}
	if _, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{
		SaleID: sale.ID,
		Lines:  []domain.ReturnLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 0}},
	}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected empty return rejected, got %v", err)
	}

	entries, _ := svc.ListStockForProduct(adminCtx(), p.ID)
	if entries[0].Quantity != 4 {
		t.Fatalf("expected stock 4 after one return, got %d", entries[0].Quantity)
	}
	history, _ := svc.CustomerSales(ctx, c.ID)
	if len(history) != 1 || history[0].ID != sale.ID {
		t.Fatalf("unexpected sale history %+v", history)
	}
}

func TestDebtSummaryCacheIsInvalidatedByPayments(t *testing.T) {
	debtCache := &countingCache{}
	svc := New(memory.NewSeeded(), Options{DebtCache: debtCache})
	c := createCustomer(t, svc, "+994701112233", 3000)
	ctx := workerCtx()

	summaries, err := svc.ListDebtSummaries(ctx)
	if err != nil || len(summaries) != 1 || summaries[0].OutstandingCents != 3000 {
		t.Fatalf("unexpected summaries %+v %v", summaries, err)
	}
	if !debtCache.hit {
		t.Fatalf("expected summaries to be cached")
	}

	before := debtCache.invalidated
	if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{CustomerID: c.ID, AmountCents: 1000}); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if debtCache.invalidated != before+1 {
		t.Fatalf("expected cache invalidation on payment")
	}
	summaries, _ = svc.ListDebtSummaries(ctx)
	if summaries[0].OutstandingCents != 2000 {
		t.Fatalf("expected fresh outstanding 2000, got %d", summaries[0].OutstandingCents)
	}
}

// racingDebtRepo runs during before the debt summary read returns, standing
// in for a write that commits while a reload is in flight.
type racingDebtRepo struct {
	store.Repository
	during func()
}

func (r *racingDebtRepo) ListDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error) {
	summaries, err := r.Repository.ListDebtSummaries(ctx)
	if r.during != nil {
		r.during()
	}
	return summaries, err
}

func TestDebtReloadOverlappingInvalidationIsNotCached(t *testing.T) {
	debtCache := &countingCache{}
	repo := &racingDebtRepo{Repository: memory.NewSeeded()}
	svc := New(repo, Options{DebtCache: debtCache})
	c := createCustomer(t, svc, "+994702223344", 3000)
	ctx := workerCtx()

	repo.during = func() {
		repo.during = nil
		if _, err := svc.CreatePayment(ctx, domain.PaymentCreateRequest{CustomerID: c.ID, AmountCents: 1000}); err != nil {
			t.Errorf("payment: %v", err)
		}
	}
	stale, err := svc.ListDebtSummaries(ctx)
	if err != nil || len(stale) != 1 || stale[0].OutstandingCents != 3000 {
		t.Fatalf("unexpected summaries %+v %v", stale, err)
	}
	if debtCache.hit {
		t.Fatalf("reload that raced a payment must not be cached")
	}

	fresh, err := svc.ListDebtSummaries(ctx)
	if err != nil || fresh[0].OutstandingCents != 2000 || !debtCache.hit {
		t.Fatalf("expected fresh cached 2000, got %+v hit=%t %v", fresh, debtCache.hit, err)
	}
}

func TestStockChangesPublishLowStockCrossings(t *testing.T) {
	pub := &recordingPublisher{}
	svc := New(memory.NewSeeded(), Options{Events: pub, Alerts: alerts.NewTracker()})
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000066", m.ID, 3)

	if pub.count("stock.low") != 0 {
		t.Fatalf("expected no low alert at qty 3 over minimum 2")
	}
	if _, err := svc.CreateSale(workerCtx(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Lines:         []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if pub.count("stock.low") != 1 || len(svc.LowStockAlerts()) != 1 {
		t.Fatalf("expected one low alert when reaching minimum")
	}

	if _, err := svc.AddStock(workerCtx(), domain.StockAddRequest{ProductID: p.ID, SizeID: m.ID, Quantity: 5}); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if pub.count("stock.recovered") != 1 || len(svc.LowStockAlerts()) != 0 {
		t.Fatalf("expected recovery after restock")
	}
	if pub.count("sale.created") != 1 || pub.count("stock.changed") < 2 {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestSetStockRejectsNegativeAndRequiresAdmin(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000073", m.ID, 3)

	if _, err := svc.SetStock(workerCtx(), p.ID, m.ID, domain.StockSetRequest{Quantity: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.SetStock(adminCtx(), p.ID, m.ID, domain.StockSetRequest{Quantity: -1}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	entry, err := svc.SetStock(adminCtx(), p.ID, m.ID, domain.StockSetRequest{Quantity: 7})
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if entry.Quantity != 7 || entry.MinimumQuantity != domain.DefaultEditStockMinimum {
		t.Fatalf("unexpected entry %+v", entry)
	}
	movements, err := svc.ProductMovements(adminCtx(), p.ID, "", "")
	if err != nil || len(movements) != 2 || movements[0].Before != 3 || movements[0].After != 7 {
		t.Fatalf("unexpected movements %+v %v", movements, err)
	}
}

func TestAddStockAcceptsSignedDeltas(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000114", m.ID, 4)

	entry, err := svc.AddStock(workerCtx(), domain.StockAddRequest{ProductID: p.ID, SizeID: m.ID, Quantity: -3})
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if entry.Quantity != 1 {
		t.Fatalf("expected 1 left, got %d", entry.Quantity)
	}
	if _, err := svc.AddStock(workerCtx(), domain.StockAddRequest{ProductID: p.ID, SizeID: m.ID, Quantity: -2}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	movements, err := svc.ProductMovements(adminCtx(), p.ID, "", "")
	if err != nil || len(movements) != 2 {
		t.Fatalf("unexpected movements %+v %v", movements, err)
	}
	last := movements[0]
	if last.Kind != domain.MovementOut || last.Source != domain.SourceStockAdjust || last.Quantity != 3 || last.Before != 4 || last.After != 1 {
		t.Fatalf("unexpected adjustment movement %+v", last)
	}
}

func TestProfitAndStockValueReports(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	p := createProduct(t, svc, "2000000000080", m.ID, 10)
	ctx := adminCtx()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		DiscountCents: 1000,
		Lines:         []domain.SaleLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if _, err := svc.CreateReturn(ctx, domain.ReturnCreateRequest{SaleID: sale.ID, Lines: []domain.ReturnLineInput{{ProductID: p.ID, SizeID: m.ID, Quantity: 1}}}); err != nil {
		t.Fatalf("return: %v", err)
	}

	report, err := svc.Profit(ctx, "", "")
	if err != nil {
		t.Fatalf("profit: %v", err)
	}
	if len(report.Items) != 1 || report.Items[0].Quantity != 2 {
		t.Fatalf("expected net quantity 2, got %+v", report.Items)
	}
	if report.ProfitCents != 12000 || report.DiscountCents != 1000 || report.NetProfitCents != 11000 {
		t.Fatalf("unexpected profit %+v", report)
	}
	if _, err := svc.Profit(workerCtx(), "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected workers barred from profit report")
	}

	value, err := svc.StockValue(ctx)
	if err != nil {
		t.Fatalf("stock value: %v", err)
	}
	if value.ProductCount != 1 || value.TotalUnits != 8 || value.CostValueCents != 32000 || value.PotentialProfitCents != 48000 {
		t.Fatalf("unexpected stock value %+v", value)
	}

	stats, err := svc.ProductStatistics(ctx, "", "", nil)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(stats.Items) != 1 || stats.Items[0].PurchasedQuantity != 10 || stats.Items[0].SoldQuantity != 2 || stats.Items[0].CurrentStock != 8 {
		t.Fatalf("unexpected statistics %+v", stats.Items)
	}
	if stats.AverageProfitPercent != 60 {
		t.Fatalf("expected 60%% profit, got %v", stats.AverageProfitPercent)
	}

	daily, err := svc.DailySales(ctx, "")
	if err != nil || daily.SaleCount != 1 || daily.NetCents != 29000 {
		t.Fatalf("unexpected daily summary %+v %v", daily, err)
	}
	if _, err := svc.DailySales(ctx, "14-10-2026"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad date rejected, got %v", err)
	}
}

func TestSettingsPasscodeUnlock(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{LockPasscode: ptr("12")}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected short passcode rejected, got %v", err)
	}
	settings, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{LockPasscode: ptr("2468"), StoreName: ptr("Butik Nur")})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if !settings.HasLockPasscode || settings.StoreName != "Butik Nur" || settings.LockPasscode == "2468" {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if err := svc.VerifyUnlock(ctx, "worker", "2468"); err != nil {
		t.Fatalf("passcode unlock: %v", err)
	}
	if err := svc.VerifyUnlock(ctx, "worker", "worker123"); err != nil {
		t.Fatalf("password unlock: %v", err)
	}
	if err := svc.VerifyUnlock(ctx, "worker", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{StoreName: ptr("  ")}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected blank store name rejected, got %v", err)
	}
}

func TestUserManagement(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "ab", Password: "secret1"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected short username rejected, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "kassa", Password: "123"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected short password rejected, got %v", err)
	}
	u, err := svc.CreateUser(ctx, domain.UserCreateRequest{FirstName: "Rəna", Username: "Kassa", Password: "secret1"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Username != "kassa" || u.Role != domain.RoleWorker || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "KASSA", Password: "secret1"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate username, got %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "kassa", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected bad password rejected, got %v", err)
	}
	if _, err := svc.UpdateUser(ctx, u.ID, domain.UserUpdateRequest{Active: ptrBool(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "kassa", "secret1"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}

	workerID := userID(t, svc, "worker")
	own := WithActor(context.Background(), domain.Actor{UserID: workerID, Username: "worker", Role: domain.RoleWorker})
	if err := svc.ChangePassword(own, workerID, domain.PasswordChangeRequest{OldPassword: "worker123", NewPassword: "worker456"}); err != nil {
		t.Fatalf("change own password: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "worker", "worker456"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := svc.ChangePassword(own, u.ID, domain.PasswordChangeRequest{OldPassword: "secret1", NewPassword: "secret2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden changing someone else's password, got %v", err)
	}

	if _, err := svc.UpdateUser(ctx, userID(t, svc, "admin"), domain.UserUpdateRequest{Role: ptr(domain.RoleWorker)}); !errors.Is(err, store.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
}

func TestLegacyPlainPasswordIsUpgraded(t *testing.T) {
	repo := memory.New()
	if _, err := repo.CreateUser(context.Background(), domain.UserAccount{Username: "eski", Password: "plain-pass", Role: domain.RoleAdmin, Active: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc := New(repo, Options{})
	if _, err := svc.Authenticate(context.Background(), "eski", "plain-pass"); err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	stored, _ := repo.GetUserByUsername(context.Background(), "eski")
	if !isPasswordHash(stored.Password) {
		t.Fatalf("expected password upgraded to bcrypt hash")
	}
	if _, err := svc.Authenticate(context.Background(), "eski", "plain-pass"); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestResetDatabaseRequiresAdminAndReseeds(t *testing.T) {
	svc := newTestService()
	m := sizeByLabel(t, svc, "M")
	createProduct(t, svc, "2000000000097", m.ID, 1)

	if err := svc.ResetDatabase(workerCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.ResetDatabase(adminCtx()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	products, _ := svc.ListProducts(adminCtx())
	categories, _ := svc.ListCategories(adminCtx())
	if len(products) != 0 || len(categories) != len(store.ResetCategories) {
		t.Fatalf("unexpected state after reset: %d products, %d categories", len(products), len(categories))
	}
	logs, err := svc.ListAuditLogs(adminCtx(), "", 10)
	if err != nil || len(logs) == 0 || logs[0].Action != "database_reset" {
		t.Fatalf("expected reset to be audited, got %+v %v", logs, err)
	}
}

func userID(t *testing.T, svc *Service, username string) int64 {
	t.Helper()
	user, err := svc.repo.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("get user %s: %v", username, err)
	}
	return user.ID
}

func ptr(s string) *string { return &s }

func ptrBool(b bool) *bool { return &b }
