package format

import "testing"

func TestMDEscapesLegacyMarkup(t *testing.T) {
	if got := MD("a_b*c`d[e] (ok)."); got != "a\\_b\\*c\\`d\\[e] (ok)." {
		t.Fatalf("MD = %q", got)
	}
}

func TestCodeAndShortAddress(t *testing.T) {
	if Code("a`b") != "`ab`" {
		t.Fatalf("code = %q", Code("a`b"))
	}
	addr := "0x1234567890abcdef1234567890abcdef12345678"
	if got := ShortAddress(addr, 6, 4); got != "0x1234...5678" {
		t.Fatalf("short = %q", got)
	}
	if ShortAddress("0x12", 6, 4) != "0x12" {
		t.Fatal("short addresses must pass through")
	}
}

func TestFullName(t *testing.T) {
	first, last, blank := "Ada", " Lovelace ", "  "
	if got := FullName(&first, &last); got != "Ada Lovelace" {
		t.Fatalf("got %q", got)
	}
	if got := FullName(nil, &blank, &first); got != "Ada" {
		t.Fatalf("got %q", got)
	}
	if got := FullName(nil, nil); got != "" {
		t.Fatalf("got %q", got)
	}
}
