package service

import (
	"context"
	"fmt"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/events"
	"geyim/backend/internal/store"
	"geyim/backend/internal/xid"
)

// CreateReturn accepts the sale by id or number. Lines with zero quantity are
// ignored; at least one unit must be returned.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	saleID := req.SaleID
	if saleID < 1 {
		number := strings.ToUpper(strings.TrimSpace(req.SaleNumber))
		if number == "" {
			return domain.Return{}, store.ErrInvalidTransaction
		}
		sale, err := s.repo.GetSaleByNumber(ctx, number)
		if err != nil {
			return domain.Return{}, err
		}
		saleID = sale.ID
	}

	for _, in := range req.Lines {
		if in.Quantity < 0 || in.ProductID < 1 || in.SizeID < 1 {
			return domain.Return{}, store.ErrInvalidTransaction
		}
	}
	lines := make([]domain.ReturnLine, 0, len(req.Lines))
	for _, in := range domain.MergeReturnLines(req.Lines) {
		if in.Quantity == 0 {
			continue
		}
		lines = append(lines, domain.ReturnLine{ProductID: in.ProductID, SizeID: in.SizeID, Quantity: in.Quantity})
	}
	if len(lines) == 0 {
		return domain.Return{}, fmt.Errorf("%w: nothing selected to return", store.ErrInvalidTransaction)
	}

	created, err := s.repo.CreateReturn(ctx, domain.Return{
		ReturnNumber: xid.New("I"),
		SaleID:       saleID,
		Lines:        lines,
		Reason:       strings.TrimSpace(req.Reason),
		Note:         strings.TrimSpace(req.Note),
		CreatedBy:    actorName(ctx),
	})
	if err != nil {
		return domain.Return{}, err
	}

	s.logAudit(ctx, "return_create", "return", created.ReturnNumber, fmt.Sprintf("sale=%s,total=%d,debt_credit=%d", created.SaleNumber, created.TotalCents, created.DebtCreditCents))
	if created.CustomerID != nil {
		s.invalidateDebt(ctx)
	}
	s.events.Publish(events.TypeReturnCreated, map[string]any{
		"id":                created.ID,
		"return_number":     created.ReturnNumber,
		"sale_number":       created.SaleNumber,
		"total_cents":       created.TotalCents,
		"debt_credit_cents": created.DebtCreditCents,
	})
	productIDs := make([]int64, 0, len(created.Lines))
	for _, line := range created.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	s.stockChanged(ctx, productIDs...)
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, id int64) (domain.Return, error) {
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx)
}
