package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

const stockSelect = `
	SELECT s.product_id, p.name, p.barcode, p.category_id, COALESCE(c.name, ''),
		s.size_id, z.label, s.quantity, s.minimum_quantity, s.updated_at
	FROM stock s
	JOIN products p ON p.id = s.product_id
	JOIN sizes z ON z.id = s.size_id
	LEFT JOIN categories c ON c.id = p.category_id
`

func scanStockEntry(row rowScanner) (domain.StockEntry, error) {
	var e domain.StockEntry
	var categoryID sql.NullInt64
	err := row.Scan(&e.ProductID, &e.ProductName, &e.Barcode, &categoryID, &e.CategoryName,
		&e.SizeID, &e.SizeLabel, &e.Quantity, &e.MinimumQuantity, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		e.CategoryID = &id
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *Store) queryStock(ctx context.Context, tail string, args ...any) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, stockSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 128)
	for rows.Next() {
		e, err := scanStockEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	entries, err := s.queryStock(ctx, "")
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

func (s *Store) ListStockForProduct(ctx context.Context, productID int64) ([]domain.StockEntry, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	entries, err := s.queryStock(ctx, `WHERE s.product_id = $1`, productID)
	if err != nil {
		return nil, err
	}
	domain.SortStockEntries(entries)
	return entries, nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.StockEntry, error) {
	return s.queryStock(ctx, `
		WHERE s.quantity <= s.minimum_quantity
		ORDER BY s.quantity ASC, lower(p.name) ASC, z.id ASC
	`)
}

func (s *Store) getStockEntry(ctx context.Context, productID, sizeID int64) (*domain.StockEntry, error) {
	e, err := scanStockEntry(s.db.QueryRowContext(ctx, stockSelect+`WHERE s.product_id = $1 AND s.size_id = $2`, productID, sizeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// lockStock verifies the product and size, then locks the stock row when present.
func lockStock(ctx context.Context, tx *sql.Tx, productID, sizeID int64) (cost int64, before int, exists bool, err error) {
	err = tx.QueryRowContext(ctx, `SELECT cost_price_cents FROM products WHERE id = $1`, productID).Scan(&cost)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	if err != nil {
		return 0, 0, false, err
	}
	var sizeExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sizes WHERE id = $1)`, sizeID).Scan(&sizeExists); err != nil {
		return 0, 0, false, err
	}
	if !sizeExists {
		return 0, 0, false, fmt.Errorf("size %d: %w", sizeID, store.ErrNotFound)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM stock
		WHERE product_id = $1 AND size_id = $2
		FOR UPDATE
	`, productID, sizeID).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return cost, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return cost, before, true, nil
}

func (s *Store) AddStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	if minimum < 0 {
		return nil, store.ErrInvalidTransaction
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cost, before, _, err := lockStock(ctx, tx, productID, sizeID)
	if err != nil {
		return nil, err
	}
	if before+qty < 0 {
		return nil, store.ErrInsufficientStock
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock (product_id, size_id, quantity, minimum_quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (product_id, size_id)
		DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity, updated_at = now()
	`, productID, sizeID, qty, minimum)
	if err != nil {
		return nil, err
	}
	if qty != 0 {
		movement := domain.StockMovement{
			ProductID:      productID,
			SizeID:         sizeID,
			Kind:           domain.MovementIn,
			Source:         domain.SourceStockAdd,
			Quantity:       qty,
			Before:         before,
			After:          before + qty,
			UnitPriceCents: cost,
		}
		if qty < 0 {
			movement.Kind = domain.MovementOut
			movement.Source = domain.SourceStockAdjust
			movement.Quantity = -qty
		}
		if err := insertMovement(ctx, tx, movement); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.getStockEntry(ctx, productID, sizeID)
}

func (s *Store) SetStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	if qty < 0 || minimum < 0 {
		return nil, store.ErrInsufficientStock
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cost, before, _, err := lockStock(ctx, tx, productID, sizeID)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock (product_id, size_id, quantity, minimum_quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (product_id, size_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, minimum_quantity = EXCLUDED.minimum_quantity, updated_at = now()
	`, productID, sizeID, qty, minimum)
	if err != nil {
		return nil, err
	}
	if delta := qty - before; delta != 0 {
		kind := domain.MovementIn
		if delta < 0 {
			kind = domain.MovementOut
			delta = -delta
		}
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ProductID:      productID,
			SizeID:         sizeID,
			Kind:           kind,
			Source:         domain.SourceStockAdjust,
			Quantity:       delta,
			Before:         before,
			After:          qty,
			UnitPriceCents: cost,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.getStockEntry(ctx, productID, sizeID)
}

func (s *Store) DeleteStock(ctx context.Context, productID, sizeID int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cost, before, exists, err := lockStock(ctx, tx, productID, sizeID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock WHERE product_id = $1 AND size_id = $2`, productID, sizeID); err != nil {
		return err
	}
	if before > 0 {
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ProductID:      productID,
			SizeID:         sizeID,
			Kind:           domain.MovementOut,
			Source:         domain.SourceStockDelete,
			Quantity:       before,
			Before:         before,
			After:          0,
			UnitPriceCents: cost,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListStockMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	where := []string{"1=1"}
	args := make([]any, 0, 3)
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("m.product_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("m.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("m.created_at < $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.product_id, p.name, m.size_id, m.size_label, m.kind, m.source, m.quantity,
			m.before_qty, m.after_qty, m.unit_price_cents, m.total_value_cents, m.note, m.created_at
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY m.created_at DESC, m.id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ProductName, &m.SizeID, &m.SizeLabel, &m.Kind, &m.Source,
			&m.Quantity, &m.Before, &m.After, &m.UnitPriceCents, &m.TotalValueCents, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

func insertMovement(ctx context.Context, q querier, m domain.StockMovement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements
			(product_id, size_id, size_label, kind, source, quantity, before_qty, after_qty, unit_price_cents, total_value_cents, note)
		VALUES ($1, $2, COALESCE((SELECT label FROM sizes WHERE id = $2), ''), $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ProductID, m.SizeID, m.Kind, m.Source, m.Quantity, m.Before, m.After,
		m.UnitPriceCents, m.UnitPriceCents*int64(m.Quantity), m.Note)
	return err
}
