package pgtype

import "testing"

func TestLSNStringRoundTrip(t *testing.T) {
	cases := []struct {
		lsn LSN
		str string
	}{
		{0, "0/0"},
		{1, "0/1"},
		{LSN(0x16 << 32), "16/0"},
		{LSN(0x1_6FFF_0010), "1/6FFF0010"},
		{LSN(0xFFFFFFFF_FFFFFFFF), "FFFFFFFF/FFFFFFFF"},
	}

	for _, c := range cases {
		if got := c.lsn.String(); got != c.str {
			t.Errorf("LSN(%d).String() = %q, want %q", uint64(c.lsn), got, c.str)
		}
		parsed, err := ParseLSN(c.str)
		if err != nil {
			t.Fatalf("ParseLSN(%q): %v", c.str, err)
		}
		if parsed != c.lsn {
			t.Errorf("ParseLSN(%q) = %d, want %d", c.str, uint64(parsed), uint64(c.lsn))
		}
	}
}

func TestParseLSNMalformed(t *testing.T) {
	for _, s := range []string{"", "nohex", "1/2/3", "GG/0"} {
		if _, err := ParseLSN(s); err == nil {
			t.Errorf("ParseLSN(%q): expected error, got nil", s)
		}
	}
}

func TestLSNSplit(t *testing.T) {
	lsn := LSN(0x0000000A_0000000B)
	upper, lower := lsn.Split()
	if upper != 0xA || lower != 0xB {
		t.Errorf("Split() = (%x, %x), want (a, b)", upper, lower)
	}
}

func TestMax(t *testing.T) {
	if Max(LSN(5), LSN(10)) != 10 {
		t.Error("Max(5, 10) != 10")
	}
	if Max(LSN(10), LSN(5)) != 10 {
		t.Error("Max(10, 5) != 10")
	}
	if Max(LSN(7), LSN(7)) != 7 {
		t.Error("Max(7, 7) != 7")
	}
}
