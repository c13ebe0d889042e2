package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Customers

const customerSelect = `
	SELECT id, first_name, last_name, phone, note, initial_debt_cents, created_at, updated_at
	FROM customers
`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Note, &c.InitialDebtCents, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) queryCustomers(ctx context.Context, tail string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, customerSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (first_name, last_name, phone, note, initial_debt_cents)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at, updated_at
	`, customer.FirstName, customer.LastName, customer.Phone, customer.Note, customer.InitialDebtCents).
		Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `ORDER BY lower(first_name), lower(last_name), id`)
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryCustomers(ctx, `
		WHERE (first_name || ' ' || last_name) ILIKE $1 OR phone ILIKE $1
		ORDER BY lower(first_name), lower(last_name), id
		LIMIT $2
	`, pattern, limit)
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, customerSelect+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET first_name = $2, last_name = $3, phone = $4, note = $5, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.FirstName, customer.LastName, customer.Phone, customer.Note)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	outstanding, err := lockOutstanding(ctx, tx, id)
	if err != nil {
		return err
	}
	if outstanding > 0 {
		return store.ErrInUse
	}
	// sales and returns keep their rows via ON DELETE SET NULL; payments cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// lockOutstanding locks the customer row and returns the unfloored balance.
func lockOutstanding(ctx context.Context, tx *sql.Tx, customerID int64) (int64, error) {
	var initial int64
	err := tx.QueryRowContext(ctx, `SELECT initial_debt_cents FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&initial)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("customer %d: %w", customerID, store.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	var credit, paid int64
	err = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(final_total_cents) FROM sales WHERE customer_id = $1 AND payment_method = 'credit'), 0),
			COALESCE((SELECT SUM(amount_cents) FROM debt_payments WHERE customer_id = $1), 0)
	`, customerID).Scan(&credit, &paid)
	if err != nil {
		return 0, err
	}
	return initial + credit - paid, nil
}

const debtSelect = `
	SELECT c.id, c.first_name, c.last_name, c.phone, c.initial_debt_cents,
		COALESCE(cs.total, 0), COALESCE(cs.n, 0), COALESCE(dp.total, 0), COALESCE(dp.n, 0)
	FROM customers c
	LEFT JOIN (
		SELECT customer_id, SUM(final_total_cents) AS total, COUNT(*) AS n
		FROM sales WHERE payment_method = 'credit' AND customer_id IS NOT NULL
		GROUP BY customer_id
	) cs ON cs.customer_id = c.id
	LEFT JOIN (
		SELECT customer_id, SUM(amount_cents) AS total, COUNT(*) AS n
		FROM debt_payments GROUP BY customer_id
	) dp ON dp.customer_id = c.id
`

func (s *Store) queryDebt(ctx context.Context, where string, args ...any) ([]domain.DebtSummary, error) {
	rows, err := s.db.QueryContext(ctx, debtSelect+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DebtSummary, 0, 32)
	for rows.Next() {
		var c domain.Customer
		var credit, paid int64
		var creditCount, paidCount int
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.InitialDebtCents, &credit, &creditCount, &paid, &paidCount); err != nil {
			return nil, err
		}
		result = append(result, domain.NewDebtSummary(c, credit, paid))
	}
	return result, rows.Err()
}

func (s *Store) GetDebtSummary(ctx context.Context, customerID int64) (domain.DebtSummary, error) {
	result, err := s.queryDebt(ctx, `WHERE c.id = $1`, customerID)
	if err != nil {
		return domain.DebtSummary{}, err
	}
	if len(result) == 0 {
		return domain.DebtSummary{}, store.ErrNotFound
	}
	return result[0], nil
}

func (s *Store) ListDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error) {
	result, err := s.queryDebt(ctx, `WHERE c.initial_debt_cents > 0 OR cs.n > 0 OR dp.n > 0`)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(result, func(a, b domain.DebtSummary) int {
		if c := cmp.Compare(b.OutstandingCents, a.OutstandingCents); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.CustomerName), strings.ToLower(b.CustomerName))
	})
	return result, nil
}

// Sales

const saleSelect = `
	SELECT s.id, s.sale_number, s.customer_id, COALESCE(TRIM(c.first_name || ' ' || c.last_name), ''),
		(SELECT COUNT(*) FROM sale_lines l WHERE l.sale_id = s.id),
		s.gross_total_cents, s.discount_cents, s.final_total_cents, s.payment_method, s.note, s.created_by, s.created_at
	FROM sales s
	LEFT JOIN customers c ON c.id = s.customer_id
`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	err := row.Scan(&sale.ID, &sale.SaleNumber, &customerID, &sale.CustomerName, &sale.LineCount,
		&sale.GrossTotalCents, &sale.DiscountCents, &sale.FinalTotalCents, &sale.PaymentMethod, &sale.Note, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		return sale, err
	}
	if customerID.Valid {
		id := customerID.Int64
		sale.CustomerID = &id
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

// loadSaleLines returns lines keyed by sale id with returned quantities filled in.
func loadSaleLines(ctx context.Context, q querier, saleIDs []int64) (map[int64][]domain.SaleLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.sale_id, l.product_id, l.size_id, l.product_name, l.barcode, l.size_label, l.quantity,
			l.unit_price_cents, l.unit_cost_cents, l.line_total_cents,
			COALESCE((
				SELECT SUM(rl.quantity)
				FROM return_lines rl
				JOIN returns r ON r.id = rl.return_id
				WHERE r.sale_id = l.sale_id AND rl.product_id = l.product_id AND rl.size_id = l.size_id
			), 0)
		FROM sale_lines l
		WHERE l.sale_id = ANY($1)
		ORDER BY l.sale_id, l.line_no
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]domain.SaleLine, len(saleIDs))
	for rows.Next() {
		var saleID int64
		var l domain.SaleLine
		if err := rows.Scan(&saleID, &l.ProductID, &l.SizeID, &l.ProductName, &l.Barcode, &l.SizeLabel, &l.Quantity,
			&l.UnitPriceCents, &l.UnitCostCents, &l.LineTotalCents, &l.ReturnedQuantity); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], l)
	}
	return result, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.SaleNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.CustomerID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, *sale.CustomerID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("customer %d: %w", *sale.CustomerID, store.ErrNotFound)
		}
	} else if sale.PaymentMethod == domain.PaymentCredit {
		return nil, store.ErrInvalidTransaction
	}

	productIDs := make([]int64, 0, len(sale.Lines))
	sizeIDs := make([]int64, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		productIDs = append(productIDs, line.ProductID)
		sizeIDs = append(sizeIDs, line.SizeID)
	}

	products, err := loadProducts(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}
	labels, err := loadSizeLabels(ctx, tx, sizeIDs)
	if err != nil {
		return nil, err
	}

	stockRows, err := tx.QueryContext(ctx, `
		SELECT product_id, size_id, quantity
		FROM stock
		WHERE product_id = ANY($1) AND size_id = ANY($2)
		FOR UPDATE
	`, productIDs, sizeIDs)
	if err != nil {
		return nil, err
	}
	type key struct{ productID, sizeID int64 }
	onHand := make(map[key]int, len(sale.Lines))
	for stockRows.Next() {
		var k key
		var qty int
		if err := stockRows.Scan(&k.productID, &k.sizeID, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		onHand[k] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	need := make(map[key]int, len(sale.Lines))
	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
		}
		label, ok := labels[line.SizeID]
		if !ok {
			return nil, fmt.Errorf("size %d: %w", line.SizeID, store.ErrNotFound)
		}
		k := key{line.ProductID, line.SizeID}
		need[k] += line.Quantity
		if qty, ok := onHand[k]; !ok || qty < need[k] {
			return nil, store.ErrInsufficientStock
		}
		if line.UnitPriceCents <= 0 {
			line.UnitPriceCents = product.SalePriceCents
		}
		line.UnitCostCents = product.CostPriceCents
		line.ProductName = product.Name
		line.Barcode = product.Barcode
		line.SizeLabel = label
		line.ReturnedQuantity = 0
		lines = append(lines, line)
	}

	gross, final, err := domain.SaleTotals(lines, sale.DiscountCents)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (sale_number, customer_id, gross_total_cents, discount_cents, final_total_cents, payment_method, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, sale.SaleNumber, nullID(sale.CustomerID), gross, sale.DiscountCents, final, sale.PaymentMethod, sale.Note, sale.CreatedBy).Scan(&sale.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}

	for i, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines
				(sale_id, line_no, product_id, size_id, product_name, barcode, size_label, quantity, unit_price_cents, unit_cost_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, sale.ID, i+1, line.ProductID, line.SizeID, line.ProductName, line.Barcode, line.SizeLabel, line.Quantity,
			line.UnitPriceCents, line.UnitCostCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}
		var after int
		err = tx.QueryRowContext(ctx, `
			UPDATE stock
			SET quantity = quantity - $3, updated_at = now()
			WHERE product_id = $1 AND size_id = $2
			RETURNING quantity
		`, line.ProductID, line.SizeID, line.Quantity).Scan(&after)
		if err != nil {
			if isCheckViolation(err) {
				return nil, store.ErrInsufficientStock
			}
			return nil, err
		}
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ProductID:      line.ProductID,
			SizeID:         line.SizeID,
			Kind:           domain.MovementOut,
			Source:         domain.SourceSale,
			Quantity:       line.Quantity,
			Before:         after + line.Quantity,
			After:          after,
			UnitPriceCents: line.UnitPriceCents,
			Note:           sale.SaleNumber,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func loadProducts(ctx context.Context, q querier, ids []int64) (map[int64]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, barcode, cost_price_cents, sale_price_cents
		FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.CostPriceCents, &p.SalePriceCents); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func loadSizeLabels(ctx context.Context, q querier, ids []int64) (map[int64]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, label FROM sizes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, err
		}
		result[id] = label
	}
	return result, rows.Err()
}

func (s *Store) getSaleWhere(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, saleSelect+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := loadSaleLines(ctx, s.db, []int64{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	sale.ReturnStatus = domain.ReturnStatusOf(sale.Lines)
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.getSaleWhere(ctx, `WHERE s.id = $1`, id)
}

func (s *Store) GetSaleByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return s.getSaleWhere(ctx, `WHERE s.sale_number = $1`, number)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where := []string{"1=1"}
	args := make([]any, 0, 3)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("s.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("s.created_at < $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("s.customer_id = $%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, saleSelect+`
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY s.created_at DESC, s.id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if !filter.WithLines || len(sales) == 0 {
		return sales, nil
	}
	ids := make([]int64, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	lines, err := loadSaleLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
		sales[i].ReturnStatus = domain.ReturnStatusOf(sales[i].Lines)
	}
	return sales, nil
}

// Returns

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ReturnNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleNumber, paymentMethod string
	var customerID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT sale_number, customer_id, payment_method
		FROM sales WHERE id = $1
		FOR UPDATE
	`, ret.SaleID).Scan(&saleNumber, &customerID, &paymentMethod)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", ret.SaleID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	saleLines, err := loadSaleLines(ctx, tx, []int64{ret.SaleID})
	if err != nil {
		return nil, err
	}
	sold := saleLines[ret.SaleID]

	type key struct{ productID, sizeID int64 }
	requested := make(map[key]int, len(ret.Lines))
	lines := make([]domain.ReturnLine, 0, len(ret.Lines))
	total := int64(0)
	for _, line := range ret.Lines {
		if line.Quantity < 0 {
			return nil, store.ErrInvalidTransaction
		}
		if line.Quantity == 0 {
			continue
		}
		at := slices.IndexFunc(sold, func(l domain.SaleLine) bool {
			return l.ProductID == line.ProductID && l.SizeID == line.SizeID
		})
		if at < 0 {
			return nil, fmt.Errorf("%w: product %d size %d not in sale", store.ErrInvalidTransaction, line.ProductID, line.SizeID)
		}
		k := key{line.ProductID, line.SizeID}
		requested[k] += line.Quantity
		if requested[k] > sold[at].Returnable() {
			return nil, store.ErrReturnExceedsSale
		}
		line.ProductName = sold[at].ProductName
		line.SizeLabel = sold[at].SizeLabel
		line.UnitPriceCents = sold[at].UnitPriceCents
		line.LineTotalCents = sold[at].UnitPriceCents * int64(line.Quantity)
		total += line.LineTotalCents
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO returns (return_number, sale_id, customer_id, total_cents, reason, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, ret.ReturnNumber, ret.SaleID, customerID, total, ret.Reason, ret.Note, ret.CreatedBy).Scan(&ret.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}

	for i, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO return_lines
				(return_id, line_no, product_id, size_id, product_name, size_label, quantity, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, ret.ID, i+1, line.ProductID, line.SizeID, line.ProductName, line.SizeLabel, line.Quantity, line.UnitPriceCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}
		var after int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO stock (product_id, size_id, quantity, minimum_quantity, updated_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (product_id, size_id)
			DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity, updated_at = now()
			RETURNING quantity
		`, line.ProductID, line.SizeID, line.Quantity, domain.DefaultStockMinimum).Scan(&after)
		if err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ProductID:      line.ProductID,
			SizeID:         line.SizeID,
			Kind:           domain.MovementIn,
			Source:         domain.SourceReturn,
			Quantity:       line.Quantity,
			Before:         after - line.Quantity,
			After:          after,
			UnitPriceCents: line.UnitPriceCents,
			Note:           ret.ReturnNumber,
		}); err != nil {
			return nil, err
		}
	}

	if paymentMethod == domain.PaymentCredit && customerID.Valid {
		outstanding, err := lockOutstanding(ctx, tx, customerID.Int64)
		if err != nil {
			return nil, err
		}
		credit := domain.ReturnDebtCredit(total, outstanding)
		if credit > 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO debt_payments (customer_id, amount_cents, method, note, return_id, created_by)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, customerID.Int64, credit, domain.PaymentReturn, "Return: "+ret.ReturnNumber, ret.ID, ret.CreatedBy)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE returns SET debt_credit_cents = $2 WHERE id = $1`, ret.ID, credit); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetReturn(ctx, ret.ID)
}

const returnSelect = `
	SELECT r.id, r.return_number, r.sale_id, s.sale_number, r.customer_id,
		COALESCE(TRIM(c.first_name || ' ' || c.last_name), ''),
		r.total_cents, r.debt_credit_cents, r.reason, r.note, r.created_by, r.created_at
	FROM returns r
	JOIN sales s ON s.id = r.sale_id
	LEFT JOIN customers c ON c.id = r.customer_id
`

func scanReturn(row rowScanner) (domain.Return, error) {
	var ret domain.Return
	var customerID sql.NullInt64
	err := row.Scan(&ret.ID, &ret.ReturnNumber, &ret.SaleID, &ret.SaleNumber, &customerID, &ret.CustomerName,
		&ret.TotalCents, &ret.DebtCreditCents, &ret.Reason, &ret.Note, &ret.CreatedBy, &ret.CreatedAt)
	if err != nil {
		return ret, err
	}
	if customerID.Valid {
		id := customerID.Int64
		ret.CustomerID = &id
	}
	ret.CreatedAt = ret.CreatedAt.UTC()
	return ret, nil
}

func (s *Store) loadReturnLines(ctx context.Context, returnIDs []int64) (map[int64][]domain.ReturnLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT return_id, product_id, size_id, product_name, size_label, quantity, unit_price_cents, line_total_cents
		FROM return_lines
		WHERE return_id = ANY($1)
		ORDER BY return_id, line_no
	`, returnIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]domain.ReturnLine, len(returnIDs))
	for rows.Next() {
		var returnID int64
		var l domain.ReturnLine
		if err := rows.Scan(&returnID, &l.ProductID, &l.SizeID, &l.ProductName, &l.SizeLabel, &l.Quantity, &l.UnitPriceCents, &l.LineTotalCents); err != nil {
			return nil, err
		}
		result[returnID] = append(result[returnID], l)
	}
	return result, rows.Err()
}

func (s *Store) GetReturn(ctx context.Context, id int64) (*domain.Return, error) {
	ret, err := scanReturn(s.db.QueryRowContext(ctx, returnSelect+`WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadReturnLines(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	ret.Lines = lines[id]
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, returnSelect+`ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Return, 0, 32)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(result) == 0 {
		return result, nil
	}
	ids := make([]int64, 0, len(result))
	for _, ret := range result {
		ids = append(ids, ret.ID)
	}
	lines, err := s.loadReturnLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Lines = lines[result[i].ID]
	}
	return result, nil
}

// Payments

func (s *Store) CreatePayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error) {
	if payment.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	outstanding, err := lockOutstanding(ctx, tx, payment.CustomerID)
	if err != nil {
		return nil, err
	}
	if payment.AmountCents > outstanding {
		return nil, store.ErrOverpayment
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO debt_payments (customer_id, amount_cents, method, note, return_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, payment.CustomerID, payment.AmountCents, payment.Method, payment.Note, nullID(payment.ReturnID), payment.CreatedBy).
		Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (s *Store) queryPayments(ctx context.Context, where string, args ...any) ([]domain.DebtPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.customer_id, TRIM(c.first_name || ' ' || c.last_name), p.amount_cents, p.method, p.note,
			p.return_id, p.created_by, p.created_at
		FROM debt_payments p
		JOIN customers c ON c.id = p.customer_id
		`+where+`
		ORDER BY p.created_at DESC, p.id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DebtPayment, 0, 64)
	for rows.Next() {
		var p domain.DebtPayment
		var returnID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.CustomerName, &p.AmountCents, &p.Method, &p.Note,
			&returnID, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		if returnID.Valid {
			id := returnID.Int64
			p.ReturnID = &id
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) ListPayments(ctx context.Context) ([]domain.DebtPayment, error) {
	return s.queryPayments(ctx, "")
}

func (s *Store) ListPaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.DebtPayment, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.queryPayments(ctx, `WHERE p.customer_id = $1`, customerID)
}
