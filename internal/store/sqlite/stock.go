package sqlite

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

func (s *Store) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	entries, err := stockEntries(s.db.WithContext(ctx), nil)
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

func (s *Store) ListStockForProduct(ctx context.Context, productID int64) ([]domain.StockEntry, error) {
	db := s.db.WithContext(ctx)
	if err := db.First(&productRow{}, productID).Error; err != nil {
		return nil, mapError(err)
	}
	entries, err := stockEntries(db, func(q *gorm.DB) *gorm.DB { return q.Where("product_id = ?", productID) })
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.StockEntry, error) {
	entries, err := stockEntries(s.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("quantity <= minimum_quantity")
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		if c := cmpString(a.ProductName, b.ProductName); c != 0 {
			return c
		}
		return domain.CompareSizeLabels(a.SizeLabel, b.SizeLabel)
	})
	return entries, nil
}

// stockEntries joins stock rows with their product, category and size in Go.
func stockEntries(db *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]domain.StockEntry, error) {
	q := db.Model(&stockRow{})
	if scope != nil {
		q = scope(q)
	}
	var rows []stockRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.StockEntry{}, nil
	}

	productIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		productIDs = append(productIDs, r.ProductID)
	}
	var products []productRow
	if err := db.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]productRow, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var sizes []sizeRow
	if err := db.Find(&sizes).Error; err != nil {
		return nil, err
	}
	labels := make(map[int64]string, len(sizes))
	for _, z := range sizes {
		labels[z.ID] = z.Label
	}
	names, err := categoryNames(db)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.StockEntry, 0, len(rows))
	for _, r := range rows {
		p := byID[r.ProductID]
		entries = append(entries, domain.StockEntry{
			ProductID:       r.ProductID,
			ProductName:     p.Name,
			Barcode:         p.Barcode,
			CategoryID:      p.CategoryID,
			CategoryName:    categoryName(names, p.CategoryID),
			SizeID:          r.SizeID,
			SizeLabel:       labels[r.SizeID],
			Quantity:        r.Quantity,
			MinimumQuantity: r.MinimumQuantity,
			UpdatedAt:       r.UpdatedAt.UTC(),
		})
	}
	return entries, nil
}

func (s *Store) getStockEntry(ctx context.Context, productID, sizeID int64) (*domain.StockEntry, error) {
	entries, err := stockEntries(s.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("product_id = ? AND size_id = ?", productID, sizeID)
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, store.ErrNotFound
	}
	return &entries[0], nil
}

type stockTarget struct {
	product productRow
	label   string
	row     stockRow
	exists  bool
}

// lockStock loads the product, size and the locked stock row when present.
func lockStock(tx *gorm.DB, productID, sizeID int64) (stockTarget, error) {
	var t stockTarget
	if err := tx.First(&t.product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return t, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		return t, err
	}
	var size sizeRow
	if err := tx.First(&size, sizeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return t, fmt.Errorf("size %d: %w", sizeID, store.ErrNotFound)
		}
		return t, err
	}
	t.label = size.Label

	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		First(&t.row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		t.row = stockRow{ProductID: productID, SizeID: sizeID}
	case err != nil:
		return t, err
	default:
		t.exists = true
	}
	return t, nil
}

// writeStock persists quantity and minimum, inserting the row when it is new.
func writeStock(tx *gorm.DB, t stockTarget) error {
	if !t.exists {
		return tx.Create(&t.row).Error
	}
	return tx.Model(&stockRow{}).
		Where("product_id = ? AND size_id = ?", t.row.ProductID, t.row.SizeID).
		Updates(map[string]any{
			"quantity":         t.row.Quantity,
			"minimum_quantity": t.row.MinimumQuantity,
			"updated_at":       tx.NowFunc(),
		}).Error
}

func (s *Store) AddStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	if minimum < 0 {
		return nil, store.ErrInvalidTransaction
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockStock(tx, productID, sizeID)
		if err != nil {
			return err
		}
		before := t.row.Quantity
		if before+qty < 0 {
			return store.ErrInsufficientStock
		}
		if !t.exists {
			t.row.MinimumQuantity = minimum
		}
		t.row.Quantity += qty
		if err := writeStock(tx, t); err != nil {
			return err
		}
		switch {
		case qty > 0:
			return insertMovement(tx, t, domain.MovementIn, domain.SourceStockAdd, qty, before, t.product.CostPriceCents, "")
		case qty < 0:
			return insertMovement(tx, t, domain.MovementOut, domain.SourceStockAdjust, -qty, before, t.product.CostPriceCents, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getStockEntry(ctx, productID, sizeID)
}

func (s *Store) SetStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	if qty < 0 || minimum < 0 {
		return nil, store.ErrInsufficientStock
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockStock(tx, productID, sizeID)
		if err != nil {
			return err
		}
		before := t.row.Quantity
		t.row.Quantity = qty
		t.row.MinimumQuantity = minimum
		if err := writeStock(tx, t); err != nil {
			return err
		}
		delta := qty - before
		if delta == 0 {
			return nil
		}
		kind := domain.MovementIn
		if delta < 0 {
			kind = domain.MovementOut
			delta = -delta
		}
		return insertMovement(tx, t, kind, domain.SourceStockAdjust, delta, before, t.product.CostPriceCents, "")
	})
	if err != nil {
		return nil, err
	}
	return s.getStockEntry(ctx, productID, sizeID)
}

func (s *Store) DeleteStock(ctx context.Context, productID, sizeID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockStock(tx, productID, sizeID)
		if err != nil {
			return err
		}
		if !t.exists {
			return store.ErrNotFound
		}
		if err := tx.Where("product_id = ? AND size_id = ?", productID, sizeID).Delete(&stockRow{}).Error; err != nil {
			return err
		}
		before := t.row.Quantity
		if before == 0 {
			return nil
		}
		t.row.Quantity = 0
		return insertMovement(tx, t, domain.MovementOut, domain.SourceStockDelete, before, before, t.product.CostPriceCents, "")
	})
}

func (s *Store) ListStockMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&movementRow{})
	if filter.ProductID != 0 {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", filter.To.UTC())
	}
	var rows []movementRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	var products []productRow
	if err := db.Select("id", "name").Find(&products).Error; err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	result := make([]domain.StockMovement, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain(names[r.ProductID]))
	}
	return result, nil
}

// insertMovement records a ledger row; after is taken from the target's current quantity.
func insertMovement(tx *gorm.DB, t stockTarget, kind, source string, qty, before int, unitPrice int64, note string) error {
	return tx.Create(&movementRow{
		ProductID:       t.product.ID,
		SizeID:          t.row.SizeID,
		SizeLabel:       t.label,
		Kind:            kind,
		Source:          source,
		Quantity:        qty,
		BeforeQty:       before,
		AfterQty:        t.row.Quantity,
		UnitPriceCents:  unitPrice,
		TotalValueCents: unitPrice * int64(qty),
		Note:            note,
	}).Error
}
