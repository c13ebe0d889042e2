package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the schema and seeds a fresh database (no users yet).
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var users int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_users`).Scan(&users); err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	accounts, err := store.SeedAccounts("postgres-store")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range store.SeedCategories {
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories (name) VALUES ($1) ON CONFLICT DO NOTHING`, name); err != nil {
			return err
		}
	}
	for _, label := range store.SeedSizes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sizes (label) VALUES ($1) ON CONFLICT DO NOTHING`, label); err != nil {
			return err
		}
	}
	for _, color := range store.SeedColors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO colors (name, hex_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`, color.Name, color.HexCode); err != nil {
			return err
		}
	}
	for _, account := range accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO app_users (first_name, last_name, username, password, role, active)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (username) DO NOTHING
		`, account.FirstName, account.LastName, account.Username, account.Password, account.Role, account.Active)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Categories

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	c := domain.Category{Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name) VALUES ($1)
		RETURNING id, created_at
	`, name).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &c, nil
}

func (s *Store) RenameCategory(ctx context.Context, id int64, name string) (*domain.Category, error) {
	c := domain.Category{ID: id, Name: name}
	err := s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2 WHERE id = $1
		RETURNING created_at
	`, id, name).Scan(&c.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM categories WHERE id = $1`, id)
}

// Sizes

func (s *Store) ListSizes(ctx context.Context) ([]domain.Size, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, created_at FROM sizes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Size, 0, 16)
	for rows.Next() {
		var size domain.Size
		if err := rows.Scan(&size.ID, &size.Label, &size.CreatedAt); err != nil {
			return nil, err
		}
		size.CreatedAt = size.CreatedAt.UTC()
		result = append(result, size)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortSizes(result)
	return result, nil
}

func (s *Store) CreateSize(ctx context.Context, label string) (*domain.Size, error) {
	size := domain.Size{Label: label}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sizes (label) VALUES ($1)
		RETURNING id, created_at
	`, label).Scan(&size.ID, &size.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &size, nil
}

func (s *Store) RenameSize(ctx context.Context, id int64, label string) (*domain.Size, error) {
	size := domain.Size{ID: id, Label: label}
	err := s.db.QueryRowContext(ctx, `
		UPDATE sizes SET label = $2 WHERE id = $1
		RETURNING created_at
	`, id, label).Scan(&size.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &size, nil
}

func (s *Store) DeleteSize(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM sizes WHERE id = $1`, id)
}

// Colors

func (s *Store) ListColors(ctx context.Context) ([]domain.Color, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, hex_code, created_at FROM colors ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Color, 0, 16)
	for rows.Next() {
		var c domain.Color
		if err := rows.Scan(&c.ID, &c.Name, &c.HexCode, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO colors (name, hex_code) VALUES ($1, $2)
		RETURNING id, created_at
	`, color.Name, color.HexCode).Scan(&color.ID, &color.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &color, nil
}

func (s *Store) UpdateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE colors SET name = $2, hex_code = $3 WHERE id = $1
		RETURNING created_at
	`, color.ID, color.Name, color.HexCode).Scan(&color.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &color, nil
}

func (s *Store) DeleteColor(ctx context.Context, id int64) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM products p JOIN colors c ON lower(p.color) = lower(c.name)
			WHERE c.id = $1
		)
	`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return store.ErrInUse
	}
	return s.deleteByID(ctx, `DELETE FROM colors WHERE id = $1`, id)
}

// Products

const productSelect = `
	SELECT p.id, p.barcode, p.name, p.category_id, COALESCE(c.name, ''), p.color, p.brand,
		p.cost_price_cents, p.sale_price_cents, p.description, p.image_path, p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var categoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &categoryID, &p.CategoryName, &p.Color, &p.Brand,
		&p.CostPriceCents, &p.SalePriceCents, &p.Description, &p.ImagePath, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) queryProducts(ctx context.Context, where string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, productSelect+where+` ORDER BY lower(p.name), p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, "")
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryProducts(ctx, `WHERE p.barcode ILIKE $1 OR p.name ILIKE $1 OR p.brand ILIKE $1`, pattern)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+`WHERE p.barcode = $1`, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, stock []domain.StockEntry) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (barcode, name, category_id, color, brand, cost_price_cents, sale_price_cents, description, image_path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, product.Barcode, product.Name, nullID(product.CategoryID), product.Color, product.Brand,
		product.CostPriceCents, product.SalePriceCents, product.Description, product.ImagePath).Scan(&product.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}

	for _, entry := range stock {
		if entry.Quantity < 0 || entry.MinimumQuantity < 0 {
			return nil, store.ErrInvalidTransaction
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock (product_id, size_id, quantity, minimum_quantity)
			VALUES ($1,$2,$3,$4)
		`, product.ID, entry.SizeID, entry.Quantity, entry.MinimumQuantity)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidTransaction
			}
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("size %d: %w", entry.SizeID, store.ErrNotFound)
			}
			return nil, err
		}
		if entry.Quantity > 0 {
			if err := insertMovement(ctx, tx, domain.StockMovement{
				ProductID:      product.ID,
				SizeID:         entry.SizeID,
				Kind:           domain.MovementIn,
				Source:         domain.SourceStockAdd,
				Quantity:       entry.Quantity,
				Before:         0,
				After:          entry.Quantity,
				UnitPriceCents: product.CostPriceCents,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET barcode = $2, name = $3, category_id = $4, color = $5, brand = $6,
			cost_price_cents = $7, sale_price_cents = $8, description = $9, image_path = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Barcode, product.Name, nullID(product.CategoryID), product.Color, product.Brand,
		product.CostPriceCents, product.SalePriceCents, product.Description, product.ImagePath)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func (s *Store) deleteByID(ctx context.Context, query string, id int64) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrInUse
		}
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError translates constraint failures into store sentinels.
func mapWriteError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case isForeignKeyViolation(err):
		return fmt.Errorf("referenced row: %w", store.ErrNotFound)
	case isCheckViolation(err):
		return store.ErrInvalidTransaction
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ store.Repository = (*Store)(nil)
