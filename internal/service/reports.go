package service

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func (s *Service) DailySales(ctx context.Context, date string) (domain.SalesSummary, error) {
	day := s.today()
	if strings.TrimSpace(date) != "" {
		parsed, err := s.parseDay(date)
		if err != nil {
			return domain.SalesSummary{}, err
		}
		day = parsed
	}
	return s.salesSummary(ctx, day.Format("2006-01-02"), day, day.AddDate(0, 0, 1))
}

func (s *Service) MonthlySales(ctx context.Context, month string) (domain.SalesSummary, error) {
	today := s.today()
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	if strings.TrimSpace(month) != "" {
		parsed, err := time.ParseInLocation("2006-01", strings.TrimSpace(month), s.loc)
		if err != nil {
			return domain.SalesSummary{}, store.ErrInvalidTransaction
		}
		first = parsed
	}
	return s.salesSummary(ctx, first.Format("2006-01"), first, first.AddDate(0, 1, 0))
}

func (s *Service) salesSummary(ctx context.Context, period string, from, to time.Time) (domain.SalesSummary, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: &from, To: &to})
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary := domain.SalesSummary{Period: period, SaleCount: len(sales)}
	for _, sale := range sales {
		summary.GrossCents += sale.GrossTotalCents
		summary.DiscountCents += sale.DiscountCents
		summary.NetCents += sale.FinalTotalCents
	}
	return summary, nil
}

// SalesByRange defaults to today when no dates are given.
func (s *Service) SalesByRange(ctx context.Context, start, end string) ([]domain.Sale, error) {
	from, to, err := s.dayRange(start, end, s.today())
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, domain.SaleFilter{From: &from, To: &to})
}

type profitKey struct {
	productID int64
	sizeID    int64
}

// Profit aggregates sold quantities net of returns per product and size.
func (s *Service) Profit(ctx context.Context, start, end string) (domain.ProfitReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProfitReport{}, err
	}
	today := s.today()
	from, to, err := s.dayRange(start, end, time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc))
	if err != nil {
		return domain.ProfitReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: &from, To: &to, WithLines: true})
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := domain.ProfitReport{
		Start: from.Format("2006-01-02"),
		End:   to.AddDate(0, 0, -1).Format("2006-01-02"),
		Items: []domain.ProfitReportItem{},
	}
	index := make(map[profitKey]int)
	for _, sale := range sales {
		report.DiscountCents += sale.DiscountCents
		for _, line := range sale.Lines {
			qty := line.Quantity - line.ReturnedQuantity
			if qty <= 0 {
				continue
			}
			key := profitKey{line.ProductID, line.SizeID}
			at, ok := index[key]
			if !ok {
				at = len(report.Items)
				index[key] = at
				report.Items = append(report.Items, domain.ProfitReportItem{
					ProductID:   line.ProductID,
					ProductName: line.ProductName,
					Barcode:     line.Barcode,
					SizeLabel:   line.SizeLabel,
				})
			}
			item := &report.Items[at]
			item.Quantity += qty
			item.CostTotalCents += line.UnitCostCents * int64(qty)
			item.SaleTotalCents += line.UnitPriceCents * int64(qty)
		}
	}
	for i := range report.Items {
		item := &report.Items[i]
		item.ProfitCents = item.SaleTotalCents - item.CostTotalCents
		report.CostTotalCents += item.CostTotalCents
		report.SaleTotalCents += item.SaleTotalCents
		report.ProfitCents += item.ProfitCents
	}
	slices.SortStableFunc(report.Items, func(a, b domain.ProfitReportItem) int {
		if c := cmp.Compare(b.ProfitCents, a.ProfitCents); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductName, b.ProductName)
	})
	report.NetProfitCents = report.ProfitCents - report.DiscountCents
	return report, nil
}

func (s *Service) StockValue(ctx context.Context) (domain.StockValueReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.StockValueReport{}, err
	}
	products, err := s.productMap(ctx)
	if err != nil {
		return domain.StockValueReport{}, err
	}
	entries, err := s.repo.ListStock(ctx)
	if err != nil {
		return domain.StockValueReport{}, err
	}

	var report domain.StockValueReport
	stocked := make(map[int64]bool)
	for _, e := range entries {
		if e.Quantity <= 0 {
			continue
		}
		p := products[e.ProductID]
		stocked[e.ProductID] = true
		report.TotalUnits += e.Quantity
		report.CostValueCents += p.CostPriceCents * int64(e.Quantity)
		report.SaleValueCents += p.SalePriceCents * int64(e.Quantity)
	}
	report.ProductCount = len(stocked)
	report.PotentialProfitCents = report.SaleValueCents - report.CostValueCents
	return report, nil
}

// ProductStatistics reports purchases from stock-in movements (returns excluded)
// and sales net of returns for every product, optionally within one category.
func (s *Service) ProductStatistics(ctx context.Context, start, end string, categoryID *int64) (domain.ProductStatisticsReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProductStatisticsReport{}, err
	}
	today := s.today()
	from, to, err := s.dayRange(start, end, time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc))
	if err != nil {
		return domain.ProductStatisticsReport{}, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ProductStatisticsReport{}, err
	}
	stats := make(map[int64]*domain.ProductStatistics, len(products))
	order := make([]int64, 0, len(products))
	for _, p := range products {
		if categoryID != nil && (p.CategoryID == nil || *p.CategoryID != *categoryID) {
			continue
		}
		stats[p.ID] = &domain.ProductStatistics{
			ProductID:    p.ID,
			ProductName:  p.Name,
			Barcode:      p.Barcode,
			CategoryID:   p.CategoryID,
			CategoryName: p.CategoryName,
		}
		order = append(order, p.ID)
	}

	movements, err := s.repo.ListStockMovements(ctx, domain.MovementFilter{From: &from, To: &to})
	if err != nil {
		return domain.ProductStatisticsReport{}, err
	}
	for _, m := range movements {
		st, ok := stats[m.ProductID]
		if !ok || m.Kind != domain.MovementIn || m.Source == domain.SourceReturn {
			continue
		}
		st.PurchasedQuantity += m.Quantity
		st.PurchasedValueCents += m.TotalValueCents
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: &from, To: &to, WithLines: true})
	if err != nil {
		return domain.ProductStatisticsReport{}, err
	}
	for _, sale := range sales {
		for _, line := range sale.Lines {
			st, ok := stats[line.ProductID]
			qty := line.Quantity - line.ReturnedQuantity
			if !ok || qty <= 0 {
				continue
			}
			st.SoldQuantity += qty
			st.SoldValueCents += line.UnitPriceCents * int64(qty)
			st.ProfitCents += (line.UnitPriceCents - line.UnitCostCents) * int64(qty)
		}
	}

	entries, err := s.repo.ListStock(ctx)
	if err != nil {
		return domain.ProductStatisticsReport{}, err
	}
	for _, e := range entries {
		if st, ok := stats[e.ProductID]; ok {
			st.CurrentStock += e.Quantity
		}
	}

	report := domain.ProductStatisticsReport{
		Start: from.Format("2006-01-02"),
		End:   to.AddDate(0, 0, -1).Format("2006-01-02"),
		Items: make([]domain.ProductStatistics, 0, len(order)),
	}
	for _, id := range order {
		st := stats[id]
		if st.SoldQuantity > 0 {
			st.AverageUnitProfitCents = st.ProfitCents / int64(st.SoldQuantity)
		}
		report.PurchasedQuantity += st.PurchasedQuantity
		report.PurchasedValueCents += st.PurchasedValueCents
		report.SoldQuantity += st.SoldQuantity
		report.SoldValueCents += st.SoldValueCents
		report.ProfitCents += st.ProfitCents
		report.Items = append(report.Items, *st)
	}
	if report.SoldValueCents > 0 {
		percent := float64(report.ProfitCents) / float64(report.SoldValueCents) * 100
		report.AverageProfitPercent = math.Round(percent*100) / 100
	}
	slices.SortStableFunc(report.Items, func(a, b domain.ProductStatistics) int {
		if c := cmp.Compare(b.SoldQuantity, a.SoldQuantity); c != 0 {
			return c
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return report, nil
}

// ProductMovements lists a product's movements newest first; dates are optional.
func (s *Service) ProductMovements(ctx context.Context, productID int64, start, end string) ([]domain.StockMovement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	filter := domain.MovementFilter{ProductID: productID}
	if strings.TrimSpace(start) != "" || strings.TrimSpace(end) != "" {
		from, to, err := s.dayRange(start, end, time.Time{})
		if err != nil {
			return nil, err
		}
		if !from.IsZero() {
			filter.From = &from
		}
		filter.To = &to
	}
	return s.repo.ListStockMovements(ctx, filter)
}

func (s *Service) productMap(ctx context.Context) (map[int64]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}
