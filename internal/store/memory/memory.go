package memory

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

type stockKey struct {
	productID int64
	sizeID    int64
}

type stockRow struct {
	quantity  int
	minimum   int
	updatedAt time.Time
}

type Store struct {
	mu         sync.RWMutex
	seq        int64
	categories map[int64]domain.Category
	sizes      map[int64]domain.Size
	colors     map[int64]domain.Color
	products   map[int64]domain.Product
	stock      map[stockKey]stockRow
	movements  []domain.StockMovement
	customers  map[int64]domain.Customer
	sales      map[int64]*domain.Sale
	returns    map[int64]*domain.Return
	payments   []domain.DebtPayment
	settings   *domain.Settings
	users      map[int64]domain.UserAccount
	auditLogs  []domain.AuditLog
}

// New returns an empty store.
func New() *Store {
	return &Store{
		categories: make(map[int64]domain.Category),
		sizes:      make(map[int64]domain.Size),
		colors:     make(map[int64]domain.Color),
		products:   make(map[int64]domain.Product),
		stock:      make(map[stockKey]stockRow),
		movements:  make([]domain.StockMovement, 0, 64),
		customers:  make(map[int64]domain.Customer),
		sales:      make(map[int64]*domain.Sale),
		returns:    make(map[int64]*domain.Return),
		users:      make(map[int64]domain.UserAccount),
		auditLogs:  make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store with default categories, sizes, colors and dev accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, name := range store.SeedCategories {
		id := s.nextID()
		s.categories[id] = domain.Category{ID: id, Name: name, CreatedAt: now}
	}
	for _, label := range store.SeedSizes {
		id := s.nextID()
		s.sizes[id] = domain.Size{ID: id, Label: label, CreatedAt: now}
	}
	for _, color := range store.SeedColors {
		color.ID = s.nextID()
		color.CreatedAt = now
		s.colors[color.ID] = color
	}
	accounts, err := store.SeedAccounts("memory-store")
	if err != nil {
		log.Fatalf("[memory-store] %v", err)
	}
	for _, account := range accounts {
		account.ID = s.nextID()
		s.users[account.ID] = account
	}
	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Categories

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categoryNameTaken(name, 0) {
		return nil, store.ErrDuplicate
	}
	c := domain.Category{ID: s.nextID(), Name: name, CreatedAt: time.Now().UTC()}
	s.categories[c.ID] = c
	return &c, nil
}

func (s *Store) RenameCategory(_ context.Context, id int64, name string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.categoryNameTaken(name, id) {
		return nil, store.ErrDuplicate
	}
	c.Name = name
	s.categories[id] = c
	return &c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return store.ErrInUse
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) categoryNameTaken(name string, exceptID int64) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Sizes

func (s *Store) ListSizes(_ context.Context) ([]domain.Size, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Size, 0, len(s.sizes))
	for _, size := range s.sizes {
		result = append(result, size)
	}
	slices.SortFunc(result, func(a, b domain.Size) int { return cmp.Compare(a.ID, b.ID) })
	domain.SortSizes(result)
	return result, nil
}

func (s *Store) CreateSize(_ context.Context, label string) (*domain.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sizeLabelTaken(label, 0) {
		return nil, store.ErrDuplicate
	}
	size := domain.Size{ID: s.nextID(), Label: label, CreatedAt: time.Now().UTC()}
	s.sizes[size.ID] = size
	return &size, nil
}

func (s *Store) RenameSize(_ context.Context, id int64, label string) (*domain.Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, ok := s.sizes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.sizeLabelTaken(label, id) {
		return nil, store.ErrDuplicate
	}
	size.Label = label
	s.sizes[id] = size
	return &size, nil
}

func (s *Store) DeleteSize(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sizes[id]; !ok {
		return store.ErrNotFound
	}
	for key := range s.stock {
		if key.sizeID == id {
			return store.ErrInUse
		}
	}
	for _, sale := range s.sales {
		for _, line := range sale.Lines {
			if line.SizeID == id {
				return store.ErrInUse
			}
		}
	}
	for _, ret := range s.returns {
		for _, line := range ret.Lines {
			if line.SizeID == id {
				return store.ErrInUse
			}
		}
	}
	delete(s.sizes, id)
	return nil
}

func (s *Store) sizeLabelTaken(label string, exceptID int64) bool {
	for _, size := range s.sizes {
		if size.ID != exceptID && strings.EqualFold(size.Label, label) {
			return true
		}
	}
	return false
}

// Colors

func (s *Store) ListColors(_ context.Context) ([]domain.Color, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Color, 0, len(s.colors))
	for _, c := range s.colors {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Color) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateColor(_ context.Context, color domain.Color) (*domain.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.colorNameTaken(color.Name, 0) {
		return nil, store.ErrDuplicate
	}
	color.ID = s.nextID()
	color.CreatedAt = time.Now().UTC()
	s.colors[color.ID] = color
	return &color, nil
}

func (s *Store) UpdateColor(_ context.Context, color domain.Color) (*domain.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.colors[color.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.colorNameTaken(color.Name, color.ID) {
		return nil, store.ErrDuplicate
	}
	existing.Name = color.Name
	existing.HexCode = color.HexCode
	s.colors[color.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteColor(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	color, ok := s.colors[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if strings.EqualFold(p.Color, color.Name) {
			return store.ErrInUse
		}
	}
	delete(s.colors, id)
	return nil
}

func (s *Store) colorNameTaken(name string, exceptID int64) bool {
	for _, c := range s.colors {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Products

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterProducts(func(domain.Product) bool { return true }), nil
}

func (s *Store) SearchProducts(_ context.Context, query string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	return s.filterProducts(func(p domain.Product) bool {
		return strings.Contains(strings.ToLower(p.Barcode), q) ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Brand), q)
	}), nil
}

func (s *Store) filterProducts(keep func(domain.Product) bool) []domain.Product {
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			result = append(result, s.productView(p))
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := cmpString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := s.productView(p)
	return &view, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Barcode == barcode {
			view := s.productView(p)
			return &view, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, stock []domain.StockEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.barcodeTaken(product.Barcode, 0) {
		return nil, store.ErrDuplicate
	}
	if err := s.checkCategory(product.CategoryID); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(stock))
	for _, entry := range stock {
		if _, ok := s.sizes[entry.SizeID]; !ok {
			return nil, fmt.Errorf("size %d: %w", entry.SizeID, store.ErrNotFound)
		}
		if seen[entry.SizeID] || entry.Quantity < 0 || entry.MinimumQuantity < 0 {
			return nil, store.ErrInvalidTransaction
		}
		seen[entry.SizeID] = true
	}

	now := time.Now().UTC()
	product.ID = s.nextID()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	for _, entry := range stock {
		key := stockKey{product.ID, entry.SizeID}
		s.stock[key] = stockRow{quantity: entry.Quantity, minimum: entry.MinimumQuantity, updatedAt: now}
		if entry.Quantity > 0 {
			s.recordMovement(product, entry.SizeID, domain.MovementIn, domain.SourceStockAdd, entry.Quantity, 0, entry.Quantity, product.CostPriceCents, "", now)
		}
	}
	view := s.productView(product)
	return &view, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.barcodeTaken(product.Barcode, product.ID) {
		return nil, store.ErrDuplicate
	}
	if err := s.checkCategory(product.CategoryID); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	view := s.productView(product)
	return &view, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		for _, line := range sale.Lines {
			if line.ProductID == id {
				return store.ErrInUse
			}
		}
	}
	for _, ret := range s.returns {
		for _, line := range ret.Lines {
			if line.ProductID == id {
				return store.ErrInUse
			}
		}
	}
	for key := range s.stock {
		if key.productID == id {
			delete(s.stock, key)
		}
	}
	s.movements = slices.DeleteFunc(s.movements, func(m domain.StockMovement) bool { return m.ProductID == id })
	delete(s.products, id)
	return nil
}

func (s *Store) barcodeTaken(barcode string, exceptID int64) bool {
	for _, p := range s.products {
		if p.ID != exceptID && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (s *Store) checkCategory(id *int64) error {
	if id == nil {
		return nil
	}
	if _, ok := s.categories[*id]; !ok {
		return fmt.Errorf("category %d: %w", *id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) productView(p domain.Product) domain.Product {
	if p.CategoryID != nil {
		p.CategoryName = s.categories[*p.CategoryID].Name
	}
	return p
}

// Stock

func (s *Store) ListStock(_ context.Context) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.stockEntries(func(stockKey, stockRow) bool { return true })
	domain.SortStockEntries(result)
	return result, nil
}

func (s *Store) ListStockForProduct(_ context.Context, productID int64) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	result := s.stockEntries(func(key stockKey, _ stockRow) bool { return key.productID == productID })
	domain.SortStockEntries(result)
	return result, nil
}

func (s *Store) ListLowStock(_ context.Context) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.stockEntries(func(_ stockKey, row stockRow) bool { return row.quantity <= row.minimum })
	slices.SortFunc(result, func(a, b domain.StockEntry) int {
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		if c := cmpString(a.ProductName, b.ProductName); c != 0 {
			return c
		}
		return domain.CompareSizeLabels(a.SizeLabel, b.SizeLabel)
	})
	return result, nil
}

func (s *Store) AddStock(_ context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.stockTarget(productID, sizeID)
	if err != nil {
		return nil, err
	}
	if minimum < 0 {
		return nil, store.ErrInvalidTransaction
	}
	now := time.Now().UTC()
	key := stockKey{productID, sizeID}
	row, exists := s.stock[key]
	if !exists {
		row = stockRow{minimum: minimum}
	}
	before := row.quantity
	if before+qty < 0 {
		return nil, store.ErrInsufficientStock
	}
	row.quantity += qty
	row.updatedAt = now
	s.stock[key] = row
	switch {
	case qty > 0:
		s.recordMovement(product, sizeID, domain.MovementIn, domain.SourceStockAdd, qty, before, row.quantity, product.CostPriceCents, "", now)
	case qty < 0:
		s.recordMovement(product, sizeID, domain.MovementOut, domain.SourceStockAdjust, -qty, before, row.quantity, product.CostPriceCents, "", now)
	}
	entry := s.stockEntry(key, row)
	return &entry, nil
}

func (s *Store) SetStock(_ context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.stockTarget(productID, sizeID)
	if err != nil {
		return nil, err
	}
	if qty < 0 || minimum < 0 {
		return nil, store.ErrInsufficientStock
	}
	now := time.Now().UTC()
	key := stockKey{productID, sizeID}
	before := s.stock[key].quantity
	row := stockRow{quantity: qty, minimum: minimum, updatedAt: now}
	s.stock[key] = row
	if delta := qty - before; delta != 0 {
		kind := domain.MovementIn
		if delta < 0 {
			kind = domain.MovementOut
			delta = -delta
		}
		s.recordMovement(product, sizeID, kind, domain.SourceStockAdjust, delta, before, qty, product.CostPriceCents, "", now)
	}
	entry := s.stockEntry(key, row)
	return &entry, nil
}

func (s *Store) DeleteStock(_ context.Context, productID, sizeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{productID, sizeID}
	row, ok := s.stock[key]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.stock, key)
	if row.quantity > 0 {
		s.recordMovement(s.products[productID], sizeID, domain.MovementOut, domain.SourceStockDelete, row.quantity, row.quantity, 0, s.products[productID].CostPriceCents, "", time.Now().UTC())
	}
	return nil
}

func (s *Store) ListStockMovements(_ context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if !inRange(m.CreatedAt, filter.From, filter.To) {
			continue
		}
		m.ProductName = s.products[m.ProductID].Name
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) stockTarget(productID, sizeID int64) (domain.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	if _, ok := s.sizes[sizeID]; !ok {
		return domain.Product{}, fmt.Errorf("size %d: %w", sizeID, store.ErrNotFound)
	}
	return product, nil
}

func (s *Store) stockEntries(keep func(stockKey, stockRow) bool) []domain.StockEntry {
	result := make([]domain.StockEntry, 0, len(s.stock))
	for key, row := range s.stock {
		if keep(key, row) {
			result = append(result, s.stockEntry(key, row))
		}
	}
	return result
}

func (s *Store) stockEntry(key stockKey, row stockRow) domain.StockEntry {
	p := s.productView(s.products[key.productID])
	return domain.StockEntry{
		ProductID:       key.productID,
		ProductName:     p.Name,
		Barcode:         p.Barcode,
		CategoryID:      p.CategoryID,
		CategoryName:    p.CategoryName,
		SizeID:          key.sizeID,
		SizeLabel:       s.sizes[key.sizeID].Label,
		Quantity:        row.quantity,
		MinimumQuantity: row.minimum,
		UpdatedAt:       row.updatedAt,
	}
}

func (s *Store) recordMovement(product domain.Product, sizeID int64, kind, source string, qty, before, after int, unitPrice int64, note string, at time.Time) {
	s.movements = append(s.movements, domain.StockMovement{
		ID:              s.nextID(),
		ProductID:       product.ID,
		SizeID:          sizeID,
		SizeLabel:       s.sizes[sizeID].Label,
		Kind:            kind,
		Source:          source,
		Quantity:        qty,
		Before:          before,
		After:           after,
		UnitPriceCents:  unitPrice,
		TotalValueCents: unitPrice * int64(qty),
		Note:            note,
		CreatedAt:       at,
	})
}

// Settings

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		defaults := domain.DefaultSettings()
		s.settings = &defaults
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settings = &settings
	return settings, nil
}

// Users

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.usernameTaken(user.Username, 0) {
		return nil, store.ErrDuplicate
	}
	if user.Role == "" {
		user.Role = domain.RoleWorker
	}
	now := time.Now().UTC()
	user.ID = s.nextID()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, user := range s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if s.usernameTaken(user.Username, user.ID) {
		return nil, store.ErrDuplicate
	}
	if isActiveAdmin(existing) && !isActiveAdmin(user) && s.otherActiveAdmins(user.ID) == 0 {
		return nil, store.ErrLastAdmin
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if isActiveAdmin(existing) && s.otherActiveAdmins(id) == 0 {
		return store.ErrLastAdmin
	}
	delete(s.users, id)
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	for id, user := range s.users {
		if user.Username == username {
			user.Password = password
			user.UpdatedAt = time.Now().UTC()
			s.users[id] = user
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) usernameTaken(username string, exceptID int64) bool {
	for _, user := range s.users {
		if user.ID != exceptID && user.Username == username {
			return true
		}
	}
	return false
}

func (s *Store) otherActiveAdmins(exceptID int64) int {
	n := 0
	for _, user := range s.users {
		if user.ID != exceptID && isActiveAdmin(user) {
			n++
		}
	}
	return n
}

func isActiveAdmin(user domain.UserAccount) bool {
	return user.Active && user.Role == domain.RoleAdmin
}

// Audit

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Reset

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.returns = make(map[int64]*domain.Return)
	s.sales = make(map[int64]*domain.Sale)
	s.payments = nil
	s.customers = make(map[int64]domain.Customer)
	s.stock = make(map[stockKey]stockRow)
	s.movements = nil
	s.products = make(map[int64]domain.Product)
	s.categories = make(map[int64]domain.Category)

	now := time.Now().UTC()
	for _, name := range store.ResetCategories {
		id := s.nextID()
		s.categories[id] = domain.Category{ID: id, Name: name, CreatedAt: now}
	}
	defaults := domain.DefaultSettings()
	s.settings = &defaults
	return nil
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && !at.Before(*to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

var _ store.Repository = (*Store)(nil)
