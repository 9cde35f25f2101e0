package utils

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ValidCedula checks a 10-digit national identity number: two-digit
// province prefix, third digit below 6, and a mod-10 check digit computed
// by doubling the odd positions.
func ValidCedula(cedula string) bool {
	if len(cedula) != 10 || !allDigits(cedula) {
		return false
	}

	province, _ := strconv.Atoi(cedula[:2])
	if province < 1 || province > 24 {
		return false
	}
	if cedula[2]-'0' >= 6 {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		d := int(cedula[i] - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(cedula[9]-'0')
}

// ValidAccountNumber accepts the cooperative's numeric account ids, 8 to 14
// digits.
func ValidAccountNumber(account string) bool {
	if len(account) < 8 || len(account) > 14 {
		return false
	}
	return allDigits(account)
}

// ParseAmount parses a positive currency amount with at most 2 fraction
// digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	if amount.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("amount must have at most 2 decimal places")
	}
	return amount, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
