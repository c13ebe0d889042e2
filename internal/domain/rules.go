package domain

import (
	"errors"
	"regexp"
)

var (
	ErrDiscountExceedsGross = errors.New("discount exceeds gross total")
	ErrNegativeDiscount     = errors.New("discount cannot be negative")
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidHexColor accepts an empty code or a #RRGGBB value.
func ValidHexColor(code string) bool {
	return code == "" || hexColorPattern.MatchString(code)
}

func IsSalePaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentCredit:
		return true
	}
	return false
}

func IsDebtPaymentMethod(method string) bool {
	return method == PaymentCash || method == PaymentCard
}

func IsRole(role string) bool {
	return role == RoleAdmin || role == RoleWorker
}

type lineKey struct {
	productID int64
	sizeID    int64
}

// MergeSaleLines folds lines for the same (product, size) into one, keeping
// first-appearance order. The first explicit unit price wins.
func MergeSaleLines(lines []SaleLineInput) []SaleLineInput {
	index := make(map[lineKey]int, len(lines))
	merged := make([]SaleLineInput, 0, len(lines))
	for _, line := range lines {
		key := lineKey{line.ProductID, line.SizeID}
		if at, ok := index[key]; ok {
			merged[at].Quantity += line.Quantity
			if merged[at].UnitPriceCents == 0 {
				merged[at].UnitPriceCents = line.UnitPriceCents
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func MergeReturnLines(lines []ReturnLineInput) []ReturnLineInput {
	index := make(map[lineKey]int, len(lines))
	merged := make([]ReturnLineInput, 0, len(lines))
	for _, line := range lines {
		key := lineKey{line.ProductID, line.SizeID}
		if at, ok := index[key]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// SaleTotals fills line totals and returns gross and final amounts.
func SaleTotals(lines []SaleLine, discount int64) (gross int64, final int64, err error) {
	if discount < 0 {
		return 0, 0, ErrNegativeDiscount
	}
	for i := range lines {
		lines[i].LineTotalCents = lines[i].UnitPriceCents * int64(lines[i].Quantity)
		gross += lines[i].LineTotalCents
	}
	if discount > gross {
		return 0, 0, ErrDiscountExceedsGross
	}
	return gross, gross - discount, nil
}

// ReturnStatusOf derives none/partial/full from returned quantities.
func ReturnStatusOf(lines []SaleLine) string {
	sold, returned := 0, 0
	for _, line := range lines {
		sold += line.Quantity
		returned += line.ReturnedQuantity
	}
	switch {
	case returned <= 0:
		return ReturnStatusNone
	case returned >= sold:
		return ReturnStatusFull
	default:
		return ReturnStatusPartial
	}
}

// NewDebtSummary assembles a summary; outstanding never goes below zero.
func NewDebtSummary(c Customer, creditSales, paid int64) DebtSummary {
	total := c.InitialDebtCents + creditSales
	outstanding := total - paid
	if outstanding < 0 {
		outstanding = 0
	}
	return DebtSummary{
		CustomerID:       c.ID,
		CustomerName:     c.FullName(),
		Phone:            c.Phone,
		InitialDebtCents: c.InitialDebtCents,
		CreditSalesCents: creditSales,
		TotalDebtCents:   total,
		TotalPaidCents:   paid,
		OutstandingCents: outstanding,
	}
}

// ReturnDebtCredit is the part of a return total that reduces an outstanding balance.
func ReturnDebtCredit(total, outstanding int64) int64 {
	if outstanding <= 0 || total <= 0 {
		return 0
	}
	return min(total, outstanding)
}
