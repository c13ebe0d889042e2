package sqlite

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Store keeps everything in a single SQLite file. One open connection
// serializes transactions, so reads inside a transaction must go through tx.
type Store struct {
	db *gorm.DB
}

// Open creates the database file if needed, migrates the schema and seeds an empty database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}

	var users int64
	if err := db.Model(&userRow{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	accounts, err := store.SeedAccounts("sqlite-store")
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, name := range store.SeedCategories {
			if err := tx.Create(&categoryRow{Name: name}).Error; err != nil {
				return err
			}
		}
		for _, label := range store.SeedSizes {
			if err := tx.Create(&sizeRow{Label: label}).Error; err != nil {
				return err
			}
		}
		for _, color := range store.SeedColors {
			if err := tx.Create(&colorRow{Name: color.Name, HexCode: color.HexCode}).Error; err != nil {
				return err
			}
		}
		for _, account := range accounts {
			row := userRowFrom(account)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Categories

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	slices.SortFunc(result, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	var created domain.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &[]categoryRow{}, "name", name, 0); err != nil {
			return err
		}
		row := categoryRow{Name: name}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) RenameCategory(ctx context.Context, id int64, name string) (*domain.Category, error) {
	var updated domain.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row categoryRow
		if err := tx.First(&row, id).Error; err != nil {
			return mapError(err)
		}
		if err := requireUniqueName(tx, &[]categoryRow{}, "name", name, id); err != nil {
			return err
		}
		row.Name = name
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&categoryRow{}, id).Error; err != nil {
			return mapError(err)
		}
		if err := requireUnused(tx, &productRow{}, "category_id = ?", id); err != nil {
			return err
		}
		return tx.Delete(&categoryRow{}, id).Error
	})
}

// Sizes

func (s *Store) ListSizes(ctx context.Context) ([]domain.Size, error) {
	var rows []sizeRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Size, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	domain.SortSizes(result)
	return result, nil
}

func (s *Store) CreateSize(ctx context.Context, label string) (*domain.Size, error) {
	var created domain.Size
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &[]sizeRow{}, "label", label, 0); err != nil {
			return err
		}
		row := sizeRow{Label: label}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) RenameSize(ctx context.Context, id int64, label string) (*domain.Size, error) {
	var updated domain.Size
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sizeRow
		if err := tx.First(&row, id).Error; err != nil {
			return mapError(err)
		}
		if err := requireUniqueName(tx, &[]sizeRow{}, "label", label, id); err != nil {
			return err
		}
		row.Label = label
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteSize(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sizeRow{}, id).Error; err != nil {
			return mapError(err)
		}
		for _, model := range []any{&stockRow{}, &saleLineRow{}, &returnLineRow{}} {
			if err := requireUnused(tx, model, "size_id = ?", id); err != nil {
				return err
			}
		}
		return tx.Delete(&sizeRow{}, id).Error
	})
}

// Colors

func (s *Store) ListColors(ctx context.Context) ([]domain.Color, error) {
	var rows []colorRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Color, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	slices.SortFunc(result, func(a, b domain.Color) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	var created domain.Color
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &[]colorRow{}, "name", color.Name, 0); err != nil {
			return err
		}
		row := colorRow{Name: color.Name, HexCode: color.HexCode}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	var updated domain.Color
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row colorRow
		if err := tx.First(&row, color.ID).Error; err != nil {
			return mapError(err)
		}
		if err := requireUniqueName(tx, &[]colorRow{}, "name", color.Name, color.ID); err != nil {
			return err
		}
		row.Name = color.Name
		row.HexCode = color.HexCode
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteColor(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row colorRow
		if err := tx.First(&row, id).Error; err != nil {
			return mapError(err)
		}
		var colors []string
		if err := tx.Model(&productRow{}).Distinct().Pluck("color", &colors).Error; err != nil {
			return err
		}
		for _, c := range colors {
			if strings.EqualFold(c, row.Name) {
				return store.ErrInUse
			}
		}
		return tx.Delete(&colorRow{}, id).Error
	})
}

// Products

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(s.db.WithContext(ctx))
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	like := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	return s.queryProducts(s.db.WithContext(ctx).Where(
		`lower(barcode) LIKE ? ESCAPE '\' OR lower(name) LIKE ? ESCAPE '\' OR lower(brand) LIKE ? ESCAPE '\'`,
		like, like, like,
	))
}

func (s *Store) queryProducts(q *gorm.DB) ([]domain.Product, error) {
	var rows []productRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	names, err := categoryNames(q.Session(&gorm.Session{NewDB: true}))
	if err != nil {
		return nil, err
	}
	result := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain(categoryName(names, r.CategoryID)))
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := cmpString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(s.db.WithContext(ctx), "id = ?", id)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return getProduct(s.db.WithContext(ctx), "barcode = ?", barcode)
}

func getProduct(db *gorm.DB, where string, arg any) (*domain.Product, error) {
	var row productRow
	if err := db.Where(where, arg).First(&row).Error; err != nil {
		return nil, mapError(err)
	}
	name := ""
	if row.CategoryID != nil {
		var c categoryRow
		if err := db.Session(&gorm.Session{NewDB: true}).First(&c, *row.CategoryID).Error; err == nil {
			name = c.Name
		}
	}
	p := row.toDomain(name)
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, stock []domain.StockEntry) (*domain.Product, error) {
	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFreeBarcode(tx, product.Barcode, 0); err != nil {
			return err
		}
		if err := checkCategory(tx, product.CategoryID); err != nil {
			return err
		}
		labels := make(map[int64]string, len(stock))
		for _, entry := range stock {
			var size sizeRow
			if err := tx.First(&size, entry.SizeID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("size %d: %w", entry.SizeID, store.ErrNotFound)
				}
				return err
			}
			if _, dup := labels[entry.SizeID]; dup || entry.Quantity < 0 || entry.MinimumQuantity < 0 {
				return store.ErrInvalidTransaction
			}
			labels[entry.SizeID] = size.Label
		}

		row := productRowFrom(product)
		row.ID = 0
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		id = row.ID
		for _, entry := range stock {
			if err := tx.Create(&stockRow{
				ProductID:       row.ID,
				SizeID:          entry.SizeID,
				Quantity:        entry.Quantity,
				MinimumQuantity: entry.MinimumQuantity,
			}).Error; err != nil {
				return err
			}
			if entry.Quantity > 0 {
				if err := tx.Create(&movementRow{
					ProductID:       row.ID,
					SizeID:          entry.SizeID,
					SizeLabel:       labels[entry.SizeID],
					Kind:            domain.MovementIn,
					Source:          domain.SourceStockAdd,
					Quantity:        entry.Quantity,
					AfterQty:        entry.Quantity,
					UnitPriceCents:  row.CostPriceCents,
					TotalValueCents: row.CostPriceCents * int64(entry.Quantity),
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing productRow
		if err := tx.First(&existing, product.ID).Error; err != nil {
			return mapError(err)
		}
		if err := requireFreeBarcode(tx, product.Barcode, product.ID); err != nil {
			return err
		}
		if err := checkCategory(tx, product.CategoryID); err != nil {
			return err
		}
		row := productRowFrom(product)
		row.CreatedAt = existing.CreatedAt
		return tx.Save(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&productRow{}, id).Error; err != nil {
			return mapError(err)
		}
		for _, model := range []any{&saleLineRow{}, &returnLineRow{}} {
			if err := requireUnused(tx, model, "product_id = ?", id); err != nil {
				return err
			}
		}
		if err := tx.Where("product_id = ?", id).Delete(&stockRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&movementRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&productRow{}, id).Error
	})
}

func requireFreeBarcode(tx *gorm.DB, barcode string, exceptID int64) error {
	err := requireUnused(tx, &productRow{}, "barcode = ? AND id <> ?", barcode, exceptID)
	if errors.Is(err, store.ErrInUse) {
		return store.ErrDuplicate
	}
	return err
}

func checkCategory(tx *gorm.DB, id *int64) error {
	if id == nil {
		return nil
	}
	if err := tx.First(&categoryRow{}, *id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("category %d: %w", *id, store.ErrNotFound)
		}
		return err
	}
	return nil
}

func categoryNames(db *gorm.DB) (map[int64]string, error) {
	var rows []categoryRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

func categoryName(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

// requireUniqueName compares case-insensitively in Go; SQLite lower() only folds ASCII.
func requireUniqueName(tx *gorm.DB, dest any, column, value string, exceptID int64) error {
	var values []string
	if err := tx.Model(dest).Where("id <> ?", exceptID).Pluck(column, &values).Error; err != nil {
		return err
	}
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return store.ErrDuplicate
		}
	}
	return nil
}

// requireUnused returns ErrInUse when any row of model matches the condition.
func requireUnused(tx *gorm.DB, model any, where string, args ...any) error {
	var n int64
	if err := tx.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return store.ErrInUse
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

func cmpString(a string, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

var _ store.Repository = (*Store)(nil)
