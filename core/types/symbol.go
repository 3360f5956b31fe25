package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol identifies a fungible asset unit: its code plus decimal precision.
type Symbol struct {
	Code      string
	Precision uint8
}

// Equal reports whether two symbols share the same code and precision.
func (s Symbol) Equal(o Symbol) bool {
	return s.Code == o.Code && s.Precision == o.Precision
}

// String renders the symbol in its canonical "precision,CODE" form.
func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// Valid reports whether the symbol carries a usable code: 1-7 uppercase
// letters.
func (s Symbol) Valid() bool {
	code := strings.TrimSpace(s.Code)
	if code == "" || len(code) > 7 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseSymbol parses the canonical "precision,CODE" form.
func ParseSymbol(raw string) (Symbol, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 2)
	if len(parts) != 2 {
		return Symbol{}, fmt.Errorf("invalid symbol %q", raw)
	}
	precision, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Symbol{}, fmt.Errorf("invalid symbol precision %q", raw)
	}
	sym := Symbol{Code: strings.TrimSpace(parts[1]), Precision: uint8(precision)}
	if !sym.Valid() {
		return Symbol{}, fmt.Errorf("invalid symbol code %q", raw)
	}
	return sym, nil
}
