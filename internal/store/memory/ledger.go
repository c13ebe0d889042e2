package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Customers

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phoneTaken(customer.Phone, 0) {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	customer.ID = s.nextID()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterCustomers(func(domain.Customer) bool { return true }, 0), nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	return s.filterCustomers(func(c domain.Customer) bool {
		return strings.Contains(strings.ToLower(c.FullName()), q) ||
			strings.Contains(strings.ToLower(c.Phone), q)
	}, limit), nil
}

func (s *Store) filterCustomers(keep func(domain.Customer) bool, limit int) []domain.Customer {
	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if keep(c) {
			result = append(result, c)
		}
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if c := cmpString(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		if c := cmpString(a.LastName, b.LastName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.phoneTaken(customer.Phone, customer.ID) {
		return nil, store.ErrDuplicate
	}
	existing.FirstName = customer.FirstName
	existing.LastName = customer.LastName
	existing.Phone = customer.Phone
	existing.Note = customer.Note
	existing.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.outstanding(customer) > 0 {
		return store.ErrInUse
	}
	for _, sale := range s.sales {
		if sale.CustomerID != nil && *sale.CustomerID == id {
			sale.CustomerID = nil
		}
	}
	for _, ret := range s.returns {
		if ret.CustomerID != nil && *ret.CustomerID == id {
			ret.CustomerID = nil
		}
	}
	s.payments = slices.DeleteFunc(s.payments, func(p domain.DebtPayment) bool { return p.CustomerID == id })
	delete(s.customers, id)
	return nil
}

func (s *Store) phoneTaken(phone string, exceptID int64) bool {
	for _, c := range s.customers {
		if c.ID != exceptID && c.Phone == phone {
			return true
		}
	}
	return false
}

func (s *Store) GetDebtSummary(_ context.Context, customerID int64) (domain.DebtSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[customerID]
	if !ok {
		return domain.DebtSummary{}, store.ErrNotFound
	}
	credit, paid := s.debtTotals(customerID)
	return domain.NewDebtSummary(customer, credit, paid), nil
}

func (s *Store) ListDebtSummaries(_ context.Context) ([]domain.DebtSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtSummary, 0, len(s.customers))
	for id, customer := range s.customers {
		credit, paid := s.debtTotals(id)
		if customer.InitialDebtCents == 0 && credit == 0 && paid == 0 && !s.hasCreditSale(id) {
			continue
		}
		result = append(result, domain.NewDebtSummary(customer, credit, paid))
	}
	slices.SortFunc(result, func(a, b domain.DebtSummary) int {
		if c := cmp.Compare(b.OutstandingCents, a.OutstandingCents); c != 0 {
			return c
		}
		return cmpString(a.CustomerName, b.CustomerName)
	})
	return result, nil
}

func (s *Store) debtTotals(customerID int64) (credit int64, paid int64) {
	for _, sale := range s.sales {
		if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != nil && *sale.CustomerID == customerID {
			credit += sale.FinalTotalCents
		}
	}
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			paid += p.AmountCents
		}
	}
	return credit, paid
}

func (s *Store) hasCreditSale(customerID int64) bool {
	for _, sale := range s.sales {
		if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != nil && *sale.CustomerID == customerID {
			return true
		}
	}
	return false
}

// outstanding is unfloored so overpayment checks see negative balances.
func (s *Store) outstanding(customer domain.Customer) int64 {
	credit, paid := s.debtTotals(customer.ID)
	return customer.InitialDebtCents + credit - paid
}

// Sales

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || sale.SaleNumber == "" {
		return nil, store.ErrInvalidTransaction
	}
	if sale.CustomerID != nil {
		if _, ok := s.customers[*sale.CustomerID]; !ok {
			return nil, fmt.Errorf("customer %d: %w", *sale.CustomerID, store.ErrNotFound)
		}
	} else if sale.PaymentMethod == domain.PaymentCredit {
		return nil, store.ErrInvalidTransaction
	}

	need := make(map[stockKey]int, len(sale.Lines))
	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		product, err := s.stockTarget(line.ProductID, line.SizeID)
		if err != nil {
			return nil, err
		}
		key := stockKey{line.ProductID, line.SizeID}
		need[key] += line.Quantity
		row, ok := s.stock[key]
		if !ok || row.quantity < need[key] {
			return nil, store.ErrInsufficientStock
		}
		if line.UnitPriceCents <= 0 {
			line.UnitPriceCents = product.SalePriceCents
		}
		line.UnitCostCents = product.CostPriceCents
		line.ProductName = product.Name
		line.Barcode = product.Barcode
		line.SizeLabel = s.sizes[line.SizeID].Label
		line.ReturnedQuantity = 0
		lines = append(lines, line)
	}

	gross, final, err := domain.SaleTotals(lines, sale.DiscountCents)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}

	now := time.Now().UTC()
	sale.ID = s.nextID()
	sale.CreatedAt = now
	sale.Lines = lines
	sale.LineCount = len(lines)
	sale.GrossTotalCents = gross
	sale.FinalTotalCents = final
	for _, line := range lines {
		key := stockKey{line.ProductID, line.SizeID}
		row := s.stock[key]
		before := row.quantity
		row.quantity -= line.Quantity
		row.updatedAt = now
		s.stock[key] = row
		s.recordMovement(s.products[line.ProductID], line.SizeID, domain.MovementOut, domain.SourceSale, line.Quantity, before, row.quantity, line.UnitPriceCents, sale.SaleNumber, now)
	}

	stored := cloneSale(&sale)
	s.sales[sale.ID] = stored
	return s.saleView(stored, true), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.saleView(sale, true), nil
}

func (s *Store) GetSaleByNumber(_ context.Context, number string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.SaleNumber == number {
			return s.saleView(sale, true), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !inRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.CustomerID != nil && (sale.CustomerID == nil || *sale.CustomerID != *filter.CustomerID) {
			continue
		}
		result = append(result, *s.saleView(sale, filter.WithLines))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) saleView(sale *domain.Sale, withLines bool) *domain.Sale {
	view := cloneSale(sale)
	if view.CustomerID != nil {
		view.CustomerName = s.customers[*view.CustomerID].FullName()
	}
	if withLines {
		view.ReturnStatus = domain.ReturnStatusOf(view.Lines)
	} else {
		view.Lines = nil
	}
	return view
}

// Returns

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[ret.SaleID]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", ret.SaleID, store.ErrNotFound)
	}
	if ret.ReturnNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	requested := make(map[stockKey]int, len(ret.Lines))
	lines := make([]domain.ReturnLine, 0, len(ret.Lines))
	total := int64(0)
	for _, line := range ret.Lines {
		if line.Quantity < 0 {
			return nil, store.ErrInvalidTransaction
		}
		if line.Quantity == 0 {
			continue
		}
		at := saleLineIndex(sale.Lines, line.ProductID, line.SizeID)
		if at < 0 {
			return nil, fmt.Errorf("%w: product %d size %d not in sale", store.ErrInvalidTransaction, line.ProductID, line.SizeID)
		}
		key := stockKey{line.ProductID, line.SizeID}
		requested[key] += line.Quantity
		if requested[key] > sale.Lines[at].Returnable() {
			return nil, store.ErrReturnExceedsSale
		}
		sold := sale.Lines[at]
		line.ProductName = sold.ProductName
		line.SizeLabel = sold.SizeLabel
		line.UnitPriceCents = sold.UnitPriceCents
		line.LineTotalCents = sold.UnitPriceCents * int64(line.Quantity)
		total += line.LineTotalCents
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	now := time.Now().UTC()
	ret.ID = s.nextID()
	ret.SaleNumber = sale.SaleNumber
	ret.CustomerID = sale.CustomerID
	ret.Lines = lines
	ret.TotalCents = total
	ret.CreatedAt = now
	for _, line := range lines {
		sale.Lines[saleLineIndex(sale.Lines, line.ProductID, line.SizeID)].ReturnedQuantity += line.Quantity
		key := stockKey{line.ProductID, line.SizeID}
		row, exists := s.stock[key]
		if !exists {
			row = stockRow{minimum: domain.DefaultStockMinimum}
		}
		before := row.quantity
		row.quantity += line.Quantity
		row.updatedAt = now
		s.stock[key] = row
		s.recordMovement(s.products[line.ProductID], line.SizeID, domain.MovementIn, domain.SourceReturn, line.Quantity, before, row.quantity, line.UnitPriceCents, ret.ReturnNumber, now)
	}

	if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != nil {
		if customer, ok := s.customers[*sale.CustomerID]; ok {
			ret.DebtCreditCents = domain.ReturnDebtCredit(total, s.outstanding(customer))
			if ret.DebtCreditCents > 0 {
				returnID := ret.ID
				s.payments = append(s.payments, domain.DebtPayment{
					ID:          s.nextID(),
					CustomerID:  customer.ID,
					AmountCents: ret.DebtCreditCents,
					Method:      domain.PaymentReturn,
					Note:        "Return: " + ret.ReturnNumber,
					ReturnID:    &returnID,
					CreatedBy:   ret.CreatedBy,
					CreatedAt:   now,
				})
			}
		}
	}

	stored := cloneReturn(&ret)
	s.returns[ret.ID] = stored
	return s.returnView(stored), nil
}

func (s *Store) GetReturn(_ context.Context, id int64) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.returnView(ret), nil
}

func (s *Store) ListReturns(_ context.Context) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		result = append(result, *s.returnView(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) returnView(ret *domain.Return) *domain.Return {
	view := cloneReturn(ret)
	if view.CustomerID != nil {
		view.CustomerName = s.customers[*view.CustomerID].FullName()
	}
	return view
}

func saleLineIndex(lines []domain.SaleLine, productID, sizeID int64) int {
	return slices.IndexFunc(lines, func(l domain.SaleLine) bool {
		return l.ProductID == productID && l.SizeID == sizeID
	})
}

// Payments

func (s *Store) CreatePayment(_ context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[payment.CustomerID]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", payment.CustomerID, store.ErrNotFound)
	}
	if payment.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	if payment.AmountCents > s.outstanding(customer) {
		return nil, store.ErrOverpayment
	}
	payment.ID = s.nextID()
	payment.CreatedAt = time.Now().UTC()
	s.payments = append(s.payments, payment)
	payment.CustomerName = customer.FullName()
	return &payment, nil
}

func (s *Store) ListPayments(_ context.Context) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterPayments(func(domain.DebtPayment) bool { return true }), nil
}

func (s *Store) ListPaymentsForCustomer(_ context.Context, customerID int64) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.filterPayments(func(p domain.DebtPayment) bool { return p.CustomerID == customerID }), nil
}

func (s *Store) filterPayments(keep func(domain.DebtPayment) bool) []domain.DebtPayment {
	result := make([]domain.DebtPayment, 0, len(s.payments))
	for _, p := range s.payments {
		if keep(p) {
			p.CustomerName = s.customers[p.CustomerID].FullName()
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.DebtPayment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result
}

func cloneSale(src *domain.Sale) *domain.Sale {
	out := *src
	out.Lines = slices.Clone(src.Lines)
	if src.CustomerID != nil {
		id := *src.CustomerID
		out.CustomerID = &id
	}
	return &out
}

func cloneReturn(src *domain.Return) *domain.Return {
	out := *src
	out.Lines = slices.Clone(src.Lines)
	if src.CustomerID != nil {
		id := *src.CustomerID
		out.CustomerID = &id
	}
	return &out
}
