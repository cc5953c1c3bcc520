package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsWholeCents(t *testing.T) {
	cases := map[string]bool{
		"10":     true,
		"10.5":   true,
		"10.50":  true,
		"10.500": true,
		"0.01":   true,
		"-3.25":  true,
		"0.004":  false,
		"10.005": false,
		"10.001": false,
	}
	for in, want := range cases {
		if got := IsWholeCents(decimal.RequireFromString(in)); got != want {
			t.Errorf("IsWholeCents(%s) = %t, want %t", in, got, want)
		}
	}
}
