package domain

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

var letterSizeOrder = map[string]int{
	"XS": 0, "S": 1, "M": 2, "L": 3, "XL": 4, "XXL": 5, "XXXL": 6,
}

// CompareSizeLabels orders letter sizes before numeric ones. Known letter
// sizes follow XS..XXXL, unknown letters sort alphabetically after them and
// numeric labels sort ascending.
func CompareSizeLabels(a, b string) int {
	an, aNum := parseSizeNumber(a)
	bn, bNum := parseSizeNumber(b)
	switch {
	case aNum && bNum:
		if c := cmp.Compare(an, bn); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aNum:
		return 1
	case bNum:
		return -1
	}

	ai, aKnown := letterSizeOrder[strings.ToUpper(strings.TrimSpace(a))]
	bi, bKnown := letterSizeOrder[strings.ToUpper(strings.TrimSpace(b))]
	switch {
	case aKnown && bKnown:
		return cmp.Compare(ai, bi)
	case aKnown:
		return -1
	case bKnown:
		return 1
	}
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func parseSizeNumber(label string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	return n, err == nil
}

func SortSizes(sizes []Size) {
	slices.SortStableFunc(sizes, func(a, b Size) int {
		return CompareSizeLabels(a.Label, b.Label)
	})
}

// SortStockEntries orders by product name, then size.
func SortStockEntries(entries []StockEntry) {
	slices.SortStableFunc(entries, func(a, b StockEntry) int {
		if c := strings.Compare(a.ProductName, b.ProductName); c != 0 {
			return c
		}
		if a.ProductID != b.ProductID {
			return cmp.Compare(a.ProductID, b.ProductID)
		}
		return CompareSizeLabels(a.SizeLabel, b.SizeLabel)
	})
}
