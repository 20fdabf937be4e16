package copperx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for input that is not a positive decimal.
	ErrInvalidAmount = errors.New("copperx: invalid amount")
	// ErrTooPrecise is returned when an amount has more decimals than the minor unit allows.
	ErrTooPrecise = errors.New("copperx: amount has too many decimal places")
)

var amountRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseAmount parses a human-entered positive decimal such as "5" or "12.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, s)
	}
	return d, nil
}

// Scale converts between human units and the gateway's fixed-point minor units.
type Scale struct {
	Decimals int32
}

// DefaultScale is the documented 10^8 contract.
var DefaultScale = Scale{Decimals: 8}

// ToMinor renders d as an integer string of minor units.
func (s Scale) ToMinor(d decimal.Decimal) (string, error) {
	m := d.Shift(s.Decimals)
	if !m.IsInteger() {
		return "", fmt.Errorf("%w: %s (max %d)", ErrTooPrecise, d.String(), s.Decimals)
	}
	return m.StringFixed(0), nil
}

// FromMinor parses a minor-unit string back to human units.
func (s Scale) FromMinor(minor string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(minor))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: minor %q", ErrInvalidAmount, minor)
	}
	return d.Shift(-s.Decimals), nil
}

// FormatMinor renders a minor-unit string with two decimals, or the raw input if unparsable.
func (s Scale) FormatMinor(minor string) string {
	d, err := s.FromMinor(minor)
	if err != nil {
		return minor
	}
	return d.StringFixed(2)
}

// FormatHuman renders a human-unit decimal string with two decimals.
func FormatHuman(v string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return d.StringFixed(2)
}
