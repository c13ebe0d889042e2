package service

import (
	"context"
	"fmt"
	"log"
	"slices"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/events"
	"geyim/backend/internal/store"
)

func (s *Service) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	entries, err := s.repo.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

// ListStockForProduct returns the product's entries with sizes in display order.
func (s *Service) ListStockForProduct(ctx context.Context, productID int64) ([]domain.StockEntry, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListStockForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

// ListLowStock orders entries with the lowest quantity first.
func (s *Service) ListLowStock(ctx context.Context) ([]domain.StockEntry, error) {
	entries, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	slices.SortStableFunc(entries, func(a, b domain.StockEntry) int {
		return a.Quantity - b.Quantity
	})
	return entries, nil
}

func (s *Service) AddStock(ctx context.Context, req domain.StockAddRequest) (domain.StockEntry, error) {
	if req.ProductID < 1 || req.SizeID < 1 {
		return domain.StockEntry{}, store.ErrInvalidTransaction
	}
	minimum := domain.DefaultStockMinimum
	if req.MinimumQuantity != nil {
		minimum = *req.MinimumQuantity
	}
	if minimum < 0 {
		return domain.StockEntry{}, store.ErrInvalidTransaction
	}

	entry, err := s.repo.AddStock(ctx, req.ProductID, req.SizeID, req.Quantity, minimum)
	if err != nil {
		return domain.StockEntry{}, err
	}
	s.logAudit(ctx, "stock_add", "stock", stockEntityID(req.ProductID, req.SizeID), fmt.Sprintf("qty=%d,after=%d", req.Quantity, entry.Quantity))
	s.stockChanged(ctx, req.ProductID)
	return *entry, nil
}

// SetStock overwrites quantity and minimum of an entry.
func (s *Service) SetStock(ctx context.Context, productID, sizeID int64, req domain.StockSetRequest) (domain.StockEntry, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.StockEntry{}, err
	}
	if productID < 1 || sizeID < 1 {
		return domain.StockEntry{}, store.ErrInvalidTransaction
	}
	minimum := domain.DefaultEditStockMinimum
	if req.MinimumQuantity != nil {
		minimum = *req.MinimumQuantity
	}
	if minimum < 0 {
		return domain.StockEntry{}, store.ErrInvalidTransaction
	}

	entry, err := s.repo.SetStock(ctx, productID, sizeID, req.Quantity, minimum)
	if err != nil {
		return domain.StockEntry{}, err
	}
	s.logAudit(ctx, "stock_set", "stock", stockEntityID(productID, sizeID), fmt.Sprintf("qty=%d,min=%d", entry.Quantity, entry.MinimumQuantity))
	s.stockChanged(ctx, productID)
	return *entry, nil
}

func (s *Service) DeleteStock(ctx context.Context, productID, sizeID int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteStock(ctx, productID, sizeID); err != nil {
		return err
	}
	s.logAudit(ctx, "stock_delete", "stock", stockEntityID(productID, sizeID), "")
	s.stockChanged(ctx, productID)
	return nil
}

// LowStockAlerts is the alert set as of the last scan.
func (s *Service) LowStockAlerts() []domain.StockEntry {
	return s.alerts.Snapshot()
}

// ScanLowStock recomputes the alert set and publishes boundary crossings.
func (s *Service) ScanLowStock(ctx context.Context) error {
	low, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}
	entered, recovered := s.alerts.Update(low)
	for _, e := range entered {
		s.events.Publish(events.TypeStockLow, e)
	}
	for _, e := range recovered {
		s.events.Publish(events.TypeStockRecovered, e)
	}
	if len(entered) > 0 {
		log.Printf("[service] low stock: %d new entries, %d total", len(entered), len(low))
	}
	return nil
}

func (s *Service) stockChanged(ctx context.Context, productIDs ...int64) {
	for _, id := range productIDs {
		s.events.Publish(events.TypeStockChanged, map[string]int64{"product_id": id})
	}
	if err := s.ScanLowStock(ctx); err != nil {
		log.Printf("[service] WARN: failed to refresh low stock alerts: %v", err)
	}
}

func stockEntityID(productID, sizeID int64) string {
	return fmt.Sprintf("%d/%d", productID, sizeID)
}
