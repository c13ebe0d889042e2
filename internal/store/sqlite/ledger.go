package sqlite

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Customers

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var created domain.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requirePhoneFree(tx, customer.Phone, 0); err != nil {
			return err
		}
		row := customerRow{
			FirstName:        customer.FirstName,
			LastName:         customer.LastName,
			Phone:            customer.Phone,
			Note:             customer.Note,
			InitialDebtCents: customer.InitialDebtCents,
		}
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

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, "", 0)
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, strings.ToLower(strings.TrimSpace(query)), limit)
}

// queryCustomers filters in Go so non-ASCII names match case-insensitively.
func (s *Store) queryCustomers(ctx context.Context, q string, limit int) ([]domain.Customer, error) {
	var rows []customerRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		c := r.toDomain()
		if q != "" && !strings.Contains(strings.ToLower(c.FullName()), q) && !strings.Contains(strings.ToLower(c.Phone), q) {
			continue
		}
		result = append(result, c)
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
	return result, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var row customerRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, mapError(err)
	}
	c := row.toDomain()
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var updated domain.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row customerRow
		if err := tx.First(&row, customer.ID).Error; err != nil {
			return mapError(err)
		}
		if err := requirePhoneFree(tx, customer.Phone, customer.ID); err != nil {
			return err
		}
		row.FirstName = customer.FirstName
		row.LastName = customer.LastName
		row.Phone = customer.Phone
		row.Note = customer.Note
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

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outstanding, err := lockOutstanding(tx, id)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return store.ErrInUse
		}
		for _, model := range []any{&saleRow{}, &returnRow{}} {
			if err := tx.Model(model).Where("customer_id = ?", id).Update("customer_id", nil).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("customer_id = ?", id).Delete(&paymentRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&customerRow{}, id).Error
	})
}

func requirePhoneFree(tx *gorm.DB, phone string, exceptID int64) error {
	err := requireUnused(tx, &customerRow{}, "phone = ? AND id <> ?", phone, exceptID)
	if errors.Is(err, store.ErrInUse) {
		return store.ErrDuplicate
	}
	return err
}

// Debt

type debtTotals struct {
	CustomerID int64
	Total      int64
}

func (s *Store) GetDebtSummary(ctx context.Context, customerID int64) (domain.DebtSummary, error) {
	db := s.db.WithContext(ctx)
	var row customerRow
	if err := db.First(&row, customerID).Error; err != nil {
		return domain.DebtSummary{}, mapError(err)
	}
	credit, paid, err := customerTotals(db, customerID)
	if err != nil {
		return domain.DebtSummary{}, err
	}
	return domain.NewDebtSummary(row.toDomain(), credit, paid), nil
}

func (s *Store) ListDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error) {
	db := s.db.WithContext(ctx)
	var customers []customerRow
	if err := db.Find(&customers).Error; err != nil {
		return nil, err
	}
	var credits, payments []debtTotals
	if err := db.Model(&saleRow{}).
		Select("customer_id, SUM(final_total_cents) AS total").
		Where("payment_method = ? AND customer_id IS NOT NULL", domain.PaymentCredit).
		Group("customer_id").Scan(&credits).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&paymentRow{}).
		Select("customer_id, SUM(amount_cents) AS total").
		Group("customer_id").Scan(&payments).Error; err != nil {
		return nil, err
	}
	creditBy := totalsByCustomer(credits)
	paidBy := totalsByCustomer(payments)

	result := make([]domain.DebtSummary, 0, len(customers))
	for _, c := range customers {
		credit, hasCredit := creditBy[c.ID]
		paid, hasPaid := paidBy[c.ID]
		if c.InitialDebtCents == 0 && !hasCredit && !hasPaid {
			continue
		}
		result = append(result, domain.NewDebtSummary(c.toDomain(), credit, paid))
	}
	slices.SortFunc(result, func(a, b domain.DebtSummary) int {
		if c := cmp.Compare(b.OutstandingCents, a.OutstandingCents); c != 0 {
			return c
		}
		return cmpString(a.CustomerName, b.CustomerName)
	})
	return result, nil
}

func totalsByCustomer(rows []debtTotals) map[int64]int64 {
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.CustomerID] = r.Total
	}
	return out
}

func customerTotals(db *gorm.DB, customerID int64) (credit int64, paid int64, err error) {
	err = db.Model(&saleRow{}).
		Select("COALESCE(SUM(final_total_cents), 0)").
		Where("customer_id = ? AND payment_method = ?", customerID, domain.PaymentCredit).
		Scan(&credit).Error
	if err != nil {
		return 0, 0, err
	}
	err = db.Model(&paymentRow{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("customer_id = ?", customerID).
		Scan(&paid).Error
	return credit, paid, err
}

// lockOutstanding locks the customer row and returns the unfloored balance.
func lockOutstanding(tx *gorm.DB, customerID int64) (int64, error) {
	var row customerRow
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
		}
		return 0, err
	}
	credit, paid, err := customerTotals(tx, customerID)
	if err != nil {
		return 0, err
	}
	return row.InitialDebtCents + credit - paid, nil
}

// Sales

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.SaleNumber == "" {
		return nil, store.ErrInvalidTransaction
	}
	if sale.CustomerID == nil && sale.PaymentMethod == domain.PaymentCredit {
		return nil, store.ErrInvalidTransaction
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if sale.CustomerID != nil {
			if err := tx.First(&customerRow{}, *sale.CustomerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("customer %d: %w", *sale.CustomerID, store.ErrNotFound)
				}
				return err
			}
		}

		type key struct{ productID, sizeID int64 }
		targets := make(map[key]*stockTarget, len(sale.Lines))
		need := make(map[key]int, len(sale.Lines))
		lines := make([]domain.SaleLine, 0, len(sale.Lines))
		for _, line := range sale.Lines {
			if line.Quantity < 1 {
				return store.ErrInvalidTransaction
			}
			k := key{line.ProductID, line.SizeID}
			t, ok := targets[k]
			if !ok {
				loaded, err := lockStock(tx, line.ProductID, line.SizeID)
				if err != nil {
					return err
				}
				t = &loaded
				targets[k] = t
			}
			need[k] += line.Quantity
			if !t.exists || t.row.Quantity < need[k] {
				return store.ErrInsufficientStock
			}
			if line.UnitPriceCents <= 0 {
				line.UnitPriceCents = t.product.SalePriceCents
			}
			line.UnitCostCents = t.product.CostPriceCents
			line.ProductName = t.product.Name
			line.Barcode = t.product.Barcode
			line.SizeLabel = t.label
			line.ReturnedQuantity = 0
			lines = append(lines, line)
		}

		gross, final, err := domain.SaleTotals(lines, sale.DiscountCents)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
		}

		row := saleRow{
			SaleNumber:      sale.SaleNumber,
			CustomerID:      sale.CustomerID,
			GrossTotalCents: gross,
			DiscountCents:   sale.DiscountCents,
			FinalTotalCents: final,
			PaymentMethod:   sale.PaymentMethod,
			Note:            sale.Note,
			CreatedBy:       sale.CreatedBy,
		}
		for i, line := range lines {
			row.Lines = append(row.Lines, saleLineRow{
				LineNo:         i + 1,
				ProductID:      line.ProductID,
				SizeID:         line.SizeID,
				ProductName:    line.ProductName,
				Barcode:        line.Barcode,
				SizeLabel:      line.SizeLabel,
				Quantity:       line.Quantity,
				UnitPriceCents: line.UnitPriceCents,
				UnitCostCents:  line.UnitCostCents,
				LineTotalCents: line.LineTotalCents,
			})
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueError(err) {
				return store.ErrDuplicate
			}
			return err
		}
		id = row.ID

		for _, line := range lines {
			t := targets[key{line.ProductID, line.SizeID}]
			before := t.row.Quantity
			t.row.Quantity -= line.Quantity
			if err := writeStock(tx, *t); err != nil {
				return err
			}
			if err := insertMovement(tx, *t, domain.MovementOut, domain.SourceSale, line.Quantity, before, line.UnitPriceCents, sale.SaleNumber); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.getSaleWhere(ctx, "id = ?", id)
}

func (s *Store) GetSaleByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return s.getSaleWhere(ctx, "sale_number = ?", number)
}

func (s *Store) getSaleWhere(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	db := s.db.WithContext(ctx)
	var row saleRow
	err := db.Preload("Lines", func(q *gorm.DB) *gorm.DB { return q.Order("line_no ASC") }).
		Where(where, arg).First(&row).Error
	if err != nil {
		return nil, mapError(err)
	}
	names, err := customerNames(db)
	if err != nil {
		return nil, err
	}
	sale := row.toDomain(customerName(names, row.CustomerID))
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	db := s.db.WithContext(ctx)
	q := db.Preload("Lines", func(q *gorm.DB) *gorm.DB { return q.Order("line_no ASC") })
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", filter.To.UTC())
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	var rows []saleRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	names, err := customerNames(db)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		sale := r.toDomain(customerName(names, r.CustomerID))
		if !filter.WithLines {
			sale.Lines = nil
			sale.ReturnStatus = ""
		}
		result = append(result, sale)
	}
	return result, nil
}

// Returns

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ReturnNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sale saleRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Lines").
			First(&sale, ret.SaleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("sale %d: %w", ret.SaleID, store.ErrNotFound)
		}
		if err != nil {
			return err
		}

		type key struct{ productID, sizeID int64 }
		soldBy := make(map[key]saleLineRow, len(sale.Lines))
		for _, l := range sale.Lines {
			soldBy[key{l.ProductID, l.SizeID}] = l
		}
		requested := make(map[key]int, len(ret.Lines))
		row := returnRow{
			ReturnNumber: ret.ReturnNumber,
			SaleID:       sale.ID,
			SaleNumber:   sale.SaleNumber,
			CustomerID:   sale.CustomerID,
			Reason:       ret.Reason,
			Note:         ret.Note,
			CreatedBy:    ret.CreatedBy,
		}
		for _, line := range ret.Lines {
			if line.Quantity < 0 {
				return store.ErrInvalidTransaction
			}
			if line.Quantity == 0 {
				continue
			}
			k := key{line.ProductID, line.SizeID}
			sold, ok := soldBy[k]
			if !ok {
				return fmt.Errorf("%w: product %d size %d not in sale", store.ErrInvalidTransaction, line.ProductID, line.SizeID)
			}
			requested[k] += line.Quantity
			if requested[k] > sold.Quantity-sold.ReturnedQuantity {
				return store.ErrReturnExceedsSale
			}
			total := sold.UnitPriceCents * int64(line.Quantity)
			row.TotalCents += total
			row.Lines = append(row.Lines, returnLineRow{
				LineNo:         len(row.Lines) + 1,
				ProductID:      line.ProductID,
				SizeID:         line.SizeID,
				ProductName:    sold.ProductName,
				SizeLabel:      sold.SizeLabel,
				Quantity:       line.Quantity,
				UnitPriceCents: sold.UnitPriceCents,
				LineTotalCents: total,
			})
		}
		if len(row.Lines) == 0 {
			return store.ErrInvalidTransaction
		}

		outstanding := int64(0)
		credited := sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID != nil
		if credited {
			if outstanding, err = lockOutstanding(tx, *sale.CustomerID); err != nil {
				return err
			}
			row.DebtCreditCents = domain.ReturnDebtCredit(row.TotalCents, outstanding)
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueError(err) {
				return store.ErrDuplicate
			}
			return err
		}
		id = row.ID

		for _, line := range row.Lines {
			sold := soldBy[key{line.ProductID, line.SizeID}]
			if err := tx.Model(&saleLineRow{}).
				Where("sale_id = ? AND line_no = ?", sale.ID, sold.LineNo).
				Update("returned_quantity", gorm.Expr("returned_quantity + ?", line.Quantity)).Error; err != nil {
				return err
			}

			t, err := lockStock(tx, line.ProductID, line.SizeID)
			if err != nil {
				return err
			}
			if !t.exists {
				t.row.MinimumQuantity = domain.DefaultStockMinimum
			}
			before := t.row.Quantity
			t.row.Quantity += line.Quantity
			if err := writeStock(tx, t); err != nil {
				return err
			}
			if err := insertMovement(tx, t, domain.MovementIn, domain.SourceReturn, line.Quantity, before, line.UnitPriceCents, row.ReturnNumber); err != nil {
				return err
			}
		}

		if row.DebtCreditCents > 0 {
			returnID := row.ID
			return tx.Create(&paymentRow{
				CustomerID:  *sale.CustomerID,
				AmountCents: row.DebtCreditCents,
				Method:      domain.PaymentReturn,
				Note:        "Return: " + row.ReturnNumber,
				ReturnID:    &returnID,
				CreatedBy:   ret.CreatedBy,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetReturn(ctx, id)
}

func (s *Store) GetReturn(ctx context.Context, id int64) (*domain.Return, error) {
	db := s.db.WithContext(ctx)
	var row returnRow
	err := db.Preload("Lines", func(q *gorm.DB) *gorm.DB { return q.Order("line_no ASC") }).First(&row, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	names, err := customerNames(db)
	if err != nil {
		return nil, err
	}
	ret := row.toDomain(customerName(names, row.CustomerID))
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	db := s.db.WithContext(ctx)
	var rows []returnRow
	err := db.Preload("Lines", func(q *gorm.DB) *gorm.DB { return q.Order("line_no ASC") }).
		Order("created_at DESC").Order("id DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	names, err := customerNames(db)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Return, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain(customerName(names, r.CustomerID)))
	}
	return result, nil
}

// Payments

func (s *Store) CreatePayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	var created domain.DebtPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outstanding, err := lockOutstanding(tx, payment.CustomerID)
		if err != nil {
			return err
		}
		if payment.AmountCents <= 0 {
			return store.ErrInvalidTransaction
		}
		if payment.AmountCents > outstanding {
			return store.ErrOverpayment
		}
		row := paymentRow{
			CustomerID:  payment.CustomerID,
			AmountCents: payment.AmountCents,
			Method:      payment.Method,
			Note:        payment.Note,
			ReturnID:    payment.ReturnID,
			CreatedBy:   payment.CreatedBy,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		var customer customerRow
		if err := tx.First(&customer, payment.CustomerID).Error; err != nil {
			return err
		}
		created = row.toDomain(customer.toDomain().FullName())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListPayments(ctx context.Context) ([]domain.DebtPayment, error) {
	return s.queryPayments(s.db.WithContext(ctx), nil)
}

func (s *Store) ListPaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.DebtPayment, error) {
	db := s.db.WithContext(ctx)
	if err := db.First(&customerRow{}, customerID).Error; err != nil {
		return nil, mapError(err)
	}
	return s.queryPayments(db, &customerID)
}

func (s *Store) queryPayments(db *gorm.DB, customerID *int64) ([]domain.DebtPayment, error) {
	q := db.Model(&paymentRow{})
	if customerID != nil {
		q = q.Where("customer_id = ?", *customerID)
	}
	var rows []paymentRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	names, err := customerNames(db)
	if err != nil {
		return nil, err
	}
	result := make([]domain.DebtPayment, 0, len(rows))
	for _, r := range rows {
		id := r.CustomerID
		result = append(result, r.toDomain(customerName(names, &id)))
	}
	return result, nil
}

func customerNames(db *gorm.DB) (map[int64]string, error) {
	var rows []customerRow
	if err := db.Select("id", "first_name", "last_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.toDomain().FullName()
	}
	return names, nil
}

func customerName(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

func isUniqueError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
