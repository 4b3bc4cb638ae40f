// Package display renders engine values for people. The engine itself only
// returns raw float64 values; rounding and currency symbols are applied here,
// at the presentation boundary.
package display

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	lakh  = 1e5
	crore = 1e7
)

// currency returns the go-money currency for code, never nil.
func currency(code string) money.Currency {
	return *money.New(0, code).Currency()
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Money formats amount in the currency's own conventions, e.g. "$1,234.50".
func Money(amount float64, code string) string {
	cur := currency(code)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// IndianMoney formats a rupee amount with lakh/crore grouping, e.g.
// "₹12,34,567.50".
func IndianMoney(amount float64) string {
	cur := currency(money.INR)
	d := decimal.NewFromFloat(amount).Round(int32(cur.Fraction))

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(int32(cur.Fraction))
	intPart, frac, _ := strings.Cut(fixed, ".")

	out := sign + cur.Grapheme + groupIndian(intPart)
	if frac != "" {
		out += cur.Decimal + frac
	}
	return out
}

// groupIndian inserts separators as 3 then 2,2,... digits from the right.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(append(parts, tail), ",")
}

// Compact abbreviates large amounts: "₹1.23 L", "₹4.50 Cr" for INR and
// "$1.2K", "$3.4M", "$5.6B" elsewhere. Small amounts use the full format.
func Compact(amount float64, code string) string {
	cur := currency(code)
	abs := amount
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}

	if code == money.INR {
		switch {
		case abs >= crore:
			return fmt.Sprintf("%s%s%s Cr", sign, cur.Grapheme, decimal.NewFromFloat(abs/crore).StringFixed(2))
		case abs >= lakh:
			return fmt.Sprintf("%s%s%s L", sign, cur.Grapheme, decimal.NewFromFloat(abs/lakh).StringFixed(2))
		default:
			return IndianMoney(amount)
		}
	}

	for _, u := range []struct {
		div    float64
		suffix string
	}{{1e9, "B"}, {1e6, "M"}, {1e3, "K"}} {
		if abs >= u.div {
			return fmt.Sprintf("%s%s%s%s", sign, cur.Grapheme, decimal.NewFromFloat(abs/u.div).StringFixed(1), u.suffix)
		}
	}
	return Money(amount, code)
}

// Percent renders p as "12.34%".
func Percent(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(2) + "%"
}

// SignedPercent renders p as "+1.20%" or "-0.35%", and zero as "-".
func SignedPercent(p float64) string {
	s := decimal.NewFromFloat(p).StringFixed(2)
	switch {
	case s == "0.00" || s == "-0.00":
		return "-"
	case strings.HasPrefix(s, "-"):
		return s + "%"
	default:
		return "+" + s + "%"
	}
}

// SignedMoney renders a P&L amount with an explicit sign, zero as "-".
func SignedMoney(amount float64, code string) string {
	var s string
	if code == money.INR {
		s = IndianMoney(amount)
	} else {
		s = Money(amount, code)
	}
	switch {
	case Round(amount, 2) == 0:
		return "-"
	case amount > 0:
		return "+" + s
	default:
		return s
	}
}
