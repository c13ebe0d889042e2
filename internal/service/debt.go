package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"geyim/backend/internal/cache"
	"geyim/backend/internal/domain"
	"geyim/backend/internal/events"
	"geyim/backend/internal/store"
)

const customerSearchLimit = 20

// Customers

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	customer := domain.Customer{
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Phone:            strings.TrimSpace(req.Phone),
		Note:             strings.TrimSpace(req.Note),
		InitialDebtCents: req.InitialDebtCents,
	}
	if err := validateCustomer(customer); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", idString(created.ID), fmt.Sprintf("phone=%s,initial_debt=%d", created.Phone, created.InitialDebtCents))
	s.invalidateDebt(ctx)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.ListCustomers(ctx)
	}
	return s.repo.SearchCustomers(ctx, query, customerSearchLimit)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// UpdateCustomer never touches the initial debt, which is fixed at creation.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	updated := *existing
	if v := trimPtr(req.FirstName); v != nil {
		updated.FirstName = *v
	}
	if v := trimPtr(req.LastName); v != nil {
		updated.LastName = *v
	}
	if v := trimPtr(req.Phone); v != nil {
		updated.Phone = *v
	}
	if v := trimPtr(req.Note); v != nil {
		updated.Note = *v
	}
	if err := validateCustomer(updated); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", idString(id), "phone="+saved.Phone)
	s.invalidateDebt(ctx)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", idString(id), "")
	s.invalidateDebt(ctx)
	return nil
}

func validateCustomer(c domain.Customer) error {
	if c.FirstName == "" || c.LastName == "" || c.Phone == "" || c.InitialDebtCents < 0 {
		return store.ErrInvalidTransaction
	}
	return nil
}

// Debt

func (s *Service) OutstandingDebt(ctx context.Context, customerID int64) (domain.DebtSummary, error) {
	return s.repo.GetDebtSummary(ctx, customerID)
}

// ListDebtSummaries serves from the cache when possible.
func (s *Service) ListDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error) {
	if cached, ok, err := s.debtCache.Get(ctx, cache.DebtSummaryKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: debt cache read failed: %v", err)
	}
	return s.loadDebtSummaries(ctx)
}

// WarmDebtCache reloads the debt summary into the cache.
func (s *Service) WarmDebtCache(ctx context.Context) error {
	_, err := s.loadDebtSummaries(ctx)
	return err
}

func (s *Service) loadDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error) {
	s.debtMu.Lock()
	gen := s.debtGen
	s.debtMu.Unlock()

	summaries, err := s.repo.ListDebtSummaries(ctx)
	if err != nil {
		return nil, err
	}

	s.debtMu.Lock()
	defer s.debtMu.Unlock()
	if gen != s.debtGen {
		return summaries, nil
	}
	if err := s.debtCache.Set(ctx, cache.DebtSummaryKey, summaries, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: debt cache write failed: %v", err)
	}
	return summaries, nil
}

func (s *Service) invalidateDebt(ctx context.Context) {
	s.debtMu.Lock()
	defer s.debtMu.Unlock()
	s.debtGen++
	if err := s.debtCache.Invalidate(ctx, cache.DebtSummaryKey); err != nil {
		log.Printf("[service] WARN: debt cache invalidate failed: %v", err)
	}
}

// Payments

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.DebtPayment, error) {
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = domain.PaymentCash
	}
	if req.CustomerID < 1 || req.AmountCents <= 0 || !domain.IsDebtPaymentMethod(req.Method) {
		return domain.DebtPayment{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreatePayment(ctx, domain.DebtPayment{
		CustomerID:  req.CustomerID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Note:        strings.TrimSpace(req.Note),
		CreatedBy:   actorName(ctx),
	})
	if err != nil {
		return domain.DebtPayment{}, err
	}
	s.logAudit(ctx, "payment_create", "customer", idString(req.CustomerID), fmt.Sprintf("amount=%d,method=%s", created.AmountCents, created.Method))
	s.invalidateDebt(ctx)
	s.events.Publish(events.TypePaymentCreated, map[string]any{
		"id":           created.ID,
		"customer_id":  created.CustomerID,
		"amount_cents": created.AmountCents,
		"method":       created.Method,
	})
	return *created, nil
}

func (s *Service) ListPayments(ctx context.Context) ([]domain.DebtPayment, error) {
	return s.repo.ListPayments(ctx)
}

func (s *Service) CustomerPayments(ctx context.Context, customerID int64) ([]domain.DebtPayment, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsForCustomer(ctx, customerID)
}
