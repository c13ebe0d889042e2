package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

const barcodeAttempts = 5

// Categories

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.NameRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidTransaction
	}
	created, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", idString(created.ID), "name="+created.Name)
	return *created, nil
}

func (s *Service) RenameCategory(ctx context.Context, id int64, req domain.NameRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if id < 1 || name == "" {
		return domain.Category{}, store.ErrInvalidTransaction
	}
	updated, err := s.repo.RenameCategory(ctx, id, name)
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_rename", "category", idString(id), "name="+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", idString(id), "")
	return nil
}

// Sizes

// ListSizes returns sizes in display order.
func (s *Service) ListSizes(ctx context.Context) ([]domain.Size, error) {
	sizes, err := s.repo.ListSizes(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortSizes(sizes)
	return sizes, nil
}

func (s *Service) CreateSize(ctx context.Context, req domain.SizeRequest) (domain.Size, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Size{}, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return domain.Size{}, store.ErrInvalidTransaction
	}
	created, err := s.repo.CreateSize(ctx, label)
	if err != nil {
		return domain.Size{}, err
	}
	s.logAudit(ctx, "size_create", "size", idString(created.ID), "label="+created.Label)
	return *created, nil
}

func (s *Service) RenameSize(ctx context.Context, id int64, req domain.SizeRequest) (domain.Size, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Size{}, err
	}
	label := strings.TrimSpace(req.Label)
	if id < 1 || label == "" {
		return domain.Size{}, store.ErrInvalidTransaction
	}
	updated, err := s.repo.RenameSize(ctx, id, label)
	if err != nil {
		return domain.Size{}, err
	}
	s.logAudit(ctx, "size_rename", "size", idString(id), "label="+updated.Label)
	return *updated, nil
}

func (s *Service) DeleteSize(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSize(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "size_delete", "size", idString(id), "")
	return nil
}

// Colors

func (s *Service) ListColors(ctx context.Context) ([]domain.Color, error) {
	return s.repo.ListColors(ctx)
}

func (s *Service) CreateColor(ctx context.Context, req domain.ColorRequest) (domain.Color, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Color{}, err
	}
	color, err := normalizeColor(0, req)
	if err != nil {
		return domain.Color{}, err
	}
	created, err := s.repo.CreateColor(ctx, color)
	if err != nil {
		return domain.Color{}, err
	}
	s.logAudit(ctx, "color_create", "color", idString(created.ID), fmt.Sprintf("name=%s,hex=%s", created.Name, created.HexCode))
	return *created, nil
}

func (s *Service) UpdateColor(ctx context.Context, id int64, req domain.ColorRequest) (domain.Color, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Color{}, err
	}
	if id < 1 {
		return domain.Color{}, store.ErrInvalidTransaction
	}
	color, err := normalizeColor(id, req)
	if err != nil {
		return domain.Color{}, err
	}
	updated, err := s.repo.UpdateColor(ctx, color)
	if err != nil {
		return domain.Color{}, err
	}
	s.logAudit(ctx, "color_update", "color", idString(id), fmt.Sprintf("name=%s,hex=%s", updated.Name, updated.HexCode))
	return *updated, nil
}

func (s *Service) DeleteColor(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteColor(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "color_delete", "color", idString(id), "")
	return nil
}

func normalizeColor(id int64, req domain.ColorRequest) (domain.Color, error) {
	name := strings.TrimSpace(req.Name)
	hex := strings.ToUpper(strings.TrimSpace(req.HexCode))
	if name == "" || !domain.ValidHexColor(hex) {
		return domain.Color{}, store.ErrInvalidTransaction
	}
	return domain.Color{ID: id, Name: name, HexCode: hex}, nil
}

// Products

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return redactProducts(ctx, products), nil
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListProducts(ctx)
	}
	products, err := s.repo.SearchProducts(ctx, query)
	if err != nil {
		return nil, err
	}
	return redactProducts(ctx, products), nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return redactProduct(ctx, *product), nil
}

// LookupBarcode treats an unknown barcode as a normal negative result.
func (s *Service) LookupBarcode(ctx context.Context, barcode string) (domain.BarcodeLookupResponse, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.BarcodeLookupResponse{}, store.ErrInvalidTransaction
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BarcodeLookupResponse{Found: false}, nil
	}
	if err != nil {
		return domain.BarcodeLookupResponse{}, err
	}
	view := redactProduct(ctx, *product)
	return domain.BarcodeLookupResponse{Found: true, Product: &view}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Barcode:        strings.TrimSpace(req.Barcode),
		Name:           strings.TrimSpace(req.Name),
		CategoryID:     req.CategoryID,
		Color:          strings.TrimSpace(req.Color),
		Brand:          strings.TrimSpace(req.Brand),
		CostPriceCents: req.CostPriceCents,
		SalePriceCents: req.SalePriceCents,
		Description:    strings.TrimSpace(req.Description),
		ImagePath:      strings.TrimSpace(req.ImagePath),
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	stock := make([]domain.StockEntry, 0, len(req.Stock))
	for _, in := range req.Stock {
		if in.SizeID < 1 || in.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		minimum := domain.DefaultEditStockMinimum
		if in.MinimumQuantity != nil {
			minimum = *in.MinimumQuantity
		}
		if minimum < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		stock = append(stock, domain.StockEntry{SizeID: in.SizeID, Quantity: in.Quantity, MinimumQuantity: minimum})
	}

	created, err := s.createWithBarcode(ctx, product, stock)
	if err != nil {
		return domain.Product{}, err
	}

	units := 0
	for _, e := range stock {
		units += e.Quantity
	}
	s.logAudit(ctx, "product_create", "product", idString(created.ID), fmt.Sprintf("barcode=%s,name=%s,price=%d,units=%d", created.Barcode, created.Name, created.SalePriceCents, units))
	if len(stock) > 0 {
		s.stockChanged(ctx, created.ID)
	}
	return *created, nil
}

// createWithBarcode generates an in-store EAN-13 when none was given, retrying on collisions.
func (s *Service) createWithBarcode(ctx context.Context, product domain.Product, stock []domain.StockEntry) (*domain.Product, error) {
	if product.Barcode != "" {
		return s.repo.CreateProduct(ctx, product, stock)
	}
	for attempt := 0; attempt < barcodeAttempts; attempt++ {
		code, err := domain.GenerateBarcode()
		if err != nil {
			return nil, fmt.Errorf("generate barcode: %w", err)
		}
		product.Barcode = code
		created, err := s.repo.CreateProduct(ctx, product, stock)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		return created, err
	}
	return nil, store.ErrDuplicate
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if id < 1 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if v := trimPtr(req.Barcode); v != nil {
		updated.Barcode = *v
	}
	if v := trimPtr(req.Name); v != nil {
		updated.Name = *v
	}
	if req.ClearCategory {
		updated.CategoryID = nil
	} else if req.CategoryID != nil {
		updated.CategoryID = req.CategoryID
	}
	if v := trimPtr(req.Color); v != nil {
		updated.Color = *v
	}
	if v := trimPtr(req.Brand); v != nil {
		updated.Brand = *v
	}
	if req.CostPriceCents != nil {
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.SalePriceCents != nil {
		updated.SalePriceCents = *req.SalePriceCents
	}
	if v := trimPtr(req.Description); v != nil {
		updated.Description = *v
	}
	if v := trimPtr(req.ImagePath); v != nil {
		updated.ImagePath = *v
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	detail := fmt.Sprintf("barcode=%s,price=%d", saved.Barcode, saved.SalePriceCents)
	if existing.SalePriceCents != saved.SalePriceCents {
		detail = fmt.Sprintf("%s,old_price=%d", detail, existing.SalePriceCents)
	}
	s.logAudit(ctx, "product_update", "product", idString(id), detail)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", idString(id), "")
	s.stockChanged(ctx, id)
	return nil
}

func validateProduct(p domain.Product) error {
	if p.Barcode == "" && p.ID != 0 {
		return store.ErrInvalidTransaction
	}
	if p.Name == "" || p.CostPriceCents < 1 || p.SalePriceCents < 1 {
		return store.ErrInvalidTransaction
	}
	if p.CategoryID != nil && *p.CategoryID < 1 {
		return store.ErrInvalidTransaction
	}
	return nil
}

func redactProduct(ctx context.Context, p domain.Product) domain.Product {
	if !isAdmin(ctx) {
		p.CostPriceCents = 0
	}
	return p
}

func redactProducts(ctx context.Context, products []domain.Product) []domain.Product {
	if isAdmin(ctx) {
		return products
	}
	for i := range products {
		products[i].CostPriceCents = 0
	}
	return products
}
