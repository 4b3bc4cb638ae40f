package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", Money(1234.5, "USD"))
	assert.Equal(t, "-$0.01", Money(-0.005, "USD"))
	assert.Equal(t, "₹1,234,567.89", Money(1234567.891, "INR"))
}

func TestIndianMoney(t *testing.T) {
	cases := map[float64]string{
		0:            "₹0.00",
		999:          "₹999.00",
		1000:         "₹1,000.00",
		123456.5:     "₹1,23,456.50",
		1234567.5:    "₹12,34,567.50",
		123456789.01: "₹12,34,56,789.01",
		-98765.432:   "-₹98,765.43",
	}
	for in, want := range cases {
		assert.Equal(t, want, IndianMoney(in), "input %v", in)
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "₹4.50 Cr", Compact(45000000, "INR"))
	assert.Equal(t, "₹1.23 L", Compact(123000, "INR"))
	assert.Equal(t, "₹99,999.00", Compact(99999, "INR"))
	assert.Equal(t, "-₹2.00 L", Compact(-200000, "INR"))
	assert.Equal(t, "$1.5K", Compact(1500, "USD"))
	assert.Equal(t, "$3.4M", Compact(3400000, "USD"))
	assert.Equal(t, "$999.00", Compact(999, "USD"))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "12.35%", Percent(12.345))
	assert.Equal(t, "+1.20%", SignedPercent(1.2))
	assert.Equal(t, "-0.35%", SignedPercent(-0.349))
	assert.Equal(t, "-", SignedPercent(0.001))
}

func TestSignedMoney(t *testing.T) {
	assert.Equal(t, "+₹1,475.00", SignedMoney(1475, "INR"))
	assert.Equal(t, "-$12.00", SignedMoney(-12, "USD"))
	assert.Equal(t, "-", SignedMoney(0.001, "INR"))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.35, Round(2.345, 2))
	assert.Equal(t, -2.35, Round(-2.345, 2))
	assert.Equal(t, 1475.0, Round(1475.0000000001, 2))
}
