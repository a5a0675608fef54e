// Package units converts between wei amounts and decimal ether strings.
package units

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const EtherDecimals = 18

// ParseWei parses a base-10 wei amount. Empty means zero.
func ParseWei(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("wei amount %q: %w", s, err)
	}
	return v, nil
}

// ParseEther converts a decimal ether amount such as "0.05" to wei. Amounts
// finer than one wei are refused.
func ParseEther(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("ether amount %q is negative", s)
	}
	w := d.Shift(EtherDecimals)
	if !w.IsInteger() {
		return nil, fmt.Errorf("ether amount %q has more than %d decimals", s, EtherDecimals)
	}
	v, overflow := uint256.FromBig(w.BigInt())
	if overflow {
		return nil, fmt.Errorf("ether amount %q overflows 256 bits", s)
	}
	return v, nil
}

// FormatEther renders wei as ether without trailing zeros.
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei.ToBig(), -EtherDecimals).String()
}
