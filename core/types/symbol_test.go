package types

import "testing"

func TestParseSymbol(t *testing.T) {
	sym, err := ParseSymbol("4,USDT")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sym.Code != "USDT" || sym.Precision != 4 {
		t.Fatalf("unexpected symbol %+v", sym)
	}
	if sym.String() != "4,USDT" {
		t.Fatalf("unexpected canonical form %q", sym.String())
	}

	for _, raw := range []string{"", "USDT", "4,", "4,usdt", "4,TOOLONGCODE", "x,USDT", "300,USDT"} {
		if _, err := ParseSymbol(raw); err == nil {
			t.Errorf("expected %q to fail", raw)
		}
	}
}

func TestSymbolValid(t *testing.T) {
	valid := []Symbol{
		{Code: "A", Precision: 0},
		{Code: "SUSDT", Precision: 4},
		{Code: "ABCDEFG", Precision: 18},
	}
	for _, sym := range valid {
		if !sym.Valid() {
			t.Errorf("expected %s to be valid", sym)
		}
	}
	invalid := []Symbol{
		{Code: "", Precision: 4},
		{Code: "usdt", Precision: 4},
		{Code: "ABCDEFGH", Precision: 4},
		{Code: "US-DT", Precision: 4},
	}
	for _, sym := range invalid {
		if sym.Valid() {
			t.Errorf("expected %s to be invalid", sym)
		}
	}
}
