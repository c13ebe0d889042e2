package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestSortSizesLettersBeforeNumbers(t *testing.T) {
	sizes := []Size{
		{Label: "44"}, {Label: "XL"}, {Label: "38"}, {Label: "S"},
		{Label: "Free"}, {Label: "XXXL"}, {Label: "M"}, {Label: "40"},
	}
	SortSizes(sizes)

	got := make([]string, 0, len(sizes))
	for _, s := range sizes {
		got = append(got, s.Label)
	}
	want := "S,M,XL,XXXL,Free,38,40,44"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(got, ","))
	}
}

func TestCompareSizeLabelsCaseInsensitiveCanonical(t *testing.T) {
	if CompareSizeLabels("xs", "L") >= 0 {
		t.Fatalf("expected xs before L")
	}
	if CompareSizeLabels("52", "9") <= 0 {
		t.Fatalf("expected numeric compare, not lexical")
	}
}

func TestMergeSaleLinesKeepsOrderAndFirstPrice(t *testing.T) {
	merged := MergeSaleLines([]SaleLineInput{
		{ProductID: 2, SizeID: 1, Quantity: 1},
		{ProductID: 1, SizeID: 1, Quantity: 2, UnitPriceCents: 900},
		{ProductID: 2, SizeID: 1, Quantity: 3, UnitPriceCents: 500},
		{ProductID: 1, SizeID: 1, Quantity: 1, UnitPriceCents: 700},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(merged))
	}
	if merged[0].ProductID != 2 || merged[0].Quantity != 4 || merged[0].UnitPriceCents != 500 {
		t.Fatalf("unexpected first line: %+v", merged[0])
	}
	if merged[1].Quantity != 3 || merged[1].UnitPriceCents != 900 {
		t.Fatalf("unexpected second line: %+v", merged[1])
	}
}

func TestSaleTotals(t *testing.T) {
	lines := []SaleLine{
		{Quantity: 2, UnitPriceCents: 2500},
		{Quantity: 1, UnitPriceCents: 1000},
	}
	gross, final, err := SaleTotals(lines, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gross != 6000 || final != 5500 {
		t.Fatalf("expected 6000/5500, got %d/%d", gross, final)
	}
	if lines[0].LineTotalCents != 5000 {
		t.Fatalf("expected line total 5000, got %d", lines[0].LineTotalCents)
	}

	if _, _, err := SaleTotals(lines, 6001); !errors.Is(err, ErrDiscountExceedsGross) {
		t.Fatalf("expected ErrDiscountExceedsGross, got %v", err)
	}
	if _, _, err := SaleTotals(lines, -1); !errors.Is(err, ErrNegativeDiscount) {
		t.Fatalf("expected ErrNegativeDiscount, got %v", err)
	}
}

func TestReturnStatusOf(t *testing.T) {
	lines := []SaleLine{{Quantity: 2}, {Quantity: 1}}
	if got := ReturnStatusOf(lines); got != ReturnStatusNone {
		t.Fatalf("expected none, got %s", got)
	}
	lines[0].ReturnedQuantity = 1
	if got := ReturnStatusOf(lines); got != ReturnStatusPartial {
		t.Fatalf("expected partial, got %s", got)
	}
	lines[0].ReturnedQuantity = 2
	lines[1].ReturnedQuantity = 1
	if got := ReturnStatusOf(lines); got != ReturnStatusFull {
		t.Fatalf("expected full, got %s", got)
	}
}

func TestNewDebtSummaryFloorsOutstanding(t *testing.T) {
	c := Customer{ID: 1, FirstName: "Aysel", LastName: "Məmmədova", InitialDebtCents: 1000}
	summary := NewDebtSummary(c, 4000, 2000)
	if summary.TotalDebtCents != 5000 || summary.OutstandingCents != 3000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.CustomerName != "Aysel Məmmədova" {
		t.Fatalf("unexpected name %q", summary.CustomerName)
	}
	if got := NewDebtSummary(c, 0, 5000).OutstandingCents; got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestReturnDebtCredit(t *testing.T) {
	if got := ReturnDebtCredit(5000, 3000); got != 3000 {
		t.Fatalf("expected cap at outstanding, got %d", got)
	}
	if got := ReturnDebtCredit(2000, 3000); got != 2000 {
		t.Fatalf("expected full total, got %d", got)
	}
	if got := ReturnDebtCredit(2000, 0); got != 0 {
		t.Fatalf("expected no credit, got %d", got)
	}
}

func TestGenerateBarcodeIsValidEAN13(t *testing.T) {
	for range 20 {
		code, err := GenerateBarcode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !strings.HasPrefix(code, "200") || !ValidEAN13(code) {
			t.Fatalf("invalid barcode %q", code)
		}
	}
	if !ValidEAN13("4006381333931") {
		t.Fatalf("expected known EAN-13 to validate")
	}
	if ValidEAN13("4006381333932") {
		t.Fatalf("expected bad check digit to fail")
	}
}

func TestValidHexColor(t *testing.T) {
	for _, code := range []string{"", "#000000", "#ffA500"} {
		if !ValidHexColor(code) {
			t.Fatalf("expected %q to be valid", code)
		}
	}
	for _, code := range []string{"000000", "#FFF", "#GGGGGG"} {
		if ValidHexColor(code) {
			t.Fatalf("expected %q to be invalid", code)
		}
	}
}
