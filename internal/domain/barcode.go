package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// instorePrefix marks EAN-13 codes generated in-store.
const instorePrefix = "200"

// GenerateBarcode returns a random in-store EAN-13 code.
func GenerateBarcode() (string, error) {
	var b strings.Builder
	b.WriteString(instorePrefix)
	for b.Len() < 12 {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	body := b.String()
	return body + string(rune('0'+ean13CheckDigit(body))), nil
}

func ean13CheckDigit(body string) int {
	sum := 0
	for i, r := range body {
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// ValidEAN13 checks length, digits and the check digit.
func ValidEAN13(code string) bool {
	if len(code) != 13 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return int(code[12]-'0') == ean13CheckDigit(code[:12])
}
