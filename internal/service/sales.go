package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/events"
	"geyim/backend/internal/store"
	"geyim/backend/internal/xid"
)

// CreateSale merges duplicate lines and commits the sale with its stock
// decrements in one repository transaction.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !domain.IsSalePaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	if len(req.Lines) == 0 || req.DiscountCents < 0 {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	if req.CustomerID != nil && *req.CustomerID < 1 {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	if req.PaymentMethod == domain.PaymentCredit && req.CustomerID == nil {
		return domain.Sale{}, fmt.Errorf("%w: credit sale requires a customer", store.ErrInvalidTransaction)
	}

	for _, in := range req.Lines {
		if in.ProductID < 1 || in.SizeID < 1 || in.Quantity < 1 || in.UnitPriceCents < 0 {
			return domain.Sale{}, store.ErrInvalidTransaction
		}
	}
	merged := domain.MergeSaleLines(req.Lines)
	lines := make([]domain.SaleLine, 0, len(merged))
	for _, in := range merged {
		lines = append(lines, domain.SaleLine{
			ProductID:      in.ProductID,
			SizeID:         in.SizeID,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
		})
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		SaleNumber:    xid.New("S"),
		CustomerID:    req.CustomerID,
		Lines:         lines,
		DiscountCents: req.DiscountCents,
		PaymentMethod: req.PaymentMethod,
		Note:          strings.TrimSpace(req.Note),
		CreatedBy:     actorName(ctx),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", created.SaleNumber, fmt.Sprintf("method=%s,lines=%d,final=%d", created.PaymentMethod, len(created.Lines), created.FinalTotalCents))
	if created.CustomerID != nil {
		s.invalidateDebt(ctx)
	}
	view := redactSale(ctx, *created)
	s.events.Publish(events.TypeSaleCreated, saleEvent(view))
	productIDs := make([]int64, 0, len(created.Lines))
	for _, line := range created.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	s.stockChanged(ctx, productIDs...)
	return view, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return redactSale(ctx, *sale), nil
}

func (s *Service) GetSaleByNumber(ctx context.Context, number string) (domain.Sale, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := s.repo.GetSaleByNumber(ctx, number)
	if err != nil {
		return domain.Sale{}, err
	}
	return redactSale(ctx, *sale), nil
}

// ListSales returns sales newest first. Empty dates leave the range open on that side.
func (s *Service) ListSales(ctx context.Context, start, end string) ([]domain.Sale, error) {
	filter := domain.SaleFilter{}
	if strings.TrimSpace(start) != "" {
		from, err := s.parseDay(start)
		if err != nil {
			return nil, err
		}
		filter.From = &from
	}
	if strings.TrimSpace(end) != "" {
		to, err := s.parseDay(end)
		if err != nil {
			return nil, err
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) CustomerSales(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, domain.SaleFilter{CustomerID: &customerID})
}

func redactSale(ctx context.Context, sale domain.Sale) domain.Sale {
	if isAdmin(ctx) {
		return sale
	}
	lines := make([]domain.SaleLine, len(sale.Lines))
	copy(lines, sale.Lines)
	for i := range lines {
		lines[i].UnitCostCents = 0
	}
	sale.Lines = lines
	return sale
}

func saleEvent(sale domain.Sale) map[string]any {
	return map[string]any{
		"id":                sale.ID,
		"sale_number":       sale.SaleNumber,
		"final_total_cents": sale.FinalTotalCents,
		"payment_method":    sale.PaymentMethod,
		"created_by":        sale.CreatedBy,
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
