package slot

import "testing"

func TestSplitJoinRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 1024, 0xFFFF, 0x10000, 0xDEADBEEF, 0xFFFFFFFF}

	for _, v := range values {
		c0 := Split(v, 0)
		c1 := Split(v, 1)
		if got := JoinChunks(c0, c1); got != v {
			t.Errorf("JoinChunks(Split(%#x)) = %#x, want %#x", v, got, v)
		}
	}
}

func TestSplitLaneChunks(t *testing.T) {
	const v = 0xABCD1234

	if got := Split(v, 0); got != 0x1234 {
		t.Errorf("Split(%#x, 0) = %#x, want 0x1234", v, got)
	}
	if got := Split(v, 1); got != 0xABCD {
		t.Errorf("Split(%#x, 1) = %#x, want 0xABCD", v, got)
	}
}

func TestPackDecode(t *testing.T) {
	tests := []struct {
		full   uint32
		lane   int
		status Status
		want   uint32
	}{
		{1024, 0, Ready, 0x40000400},
		{1024, 1, Ready, 0x40000000},
		{4096, 0, Inclusive, 0x80001000},
		{4096, 1, Inclusive, 0x80000000},
		{0, 0, NotReady, 0},
		{0x12345678, 1, Inclusive, 0x80001234},
	}

	for _, tc := range tests {
		word := Pack(tc.full, tc.lane, tc.status)
		if word != tc.want {
			t.Errorf("Pack(%#x, %d, %v) = %#08x, want %#08x", tc.full, tc.lane, tc.status, word, tc.want)
		}
		if got := StatusOf(word); got != tc.status {
			t.Errorf("StatusOf(%#08x) = %v, want %v", word, got, tc.status)
		}
		if got := Chunk(word); got != Split(tc.full, tc.lane) {
			t.Errorf("Chunk(%#08x) = %#x, want %#x", word, got, Split(tc.full, tc.lane))
		}
	}
}

func TestJoinIgnoresStatusBits(t *testing.T) {
	const v = 3072

	w0 := Pack(v, 0, Inclusive)
	w1 := Pack(v, 1, Inclusive)
	if got := Join(w0, w1); got != v {
		t.Errorf("Join = %d, want %d", got, v)
	}
}

func TestPairStatus(t *testing.T) {
	w0 := Pack(1024, 0, Ready)
	w1 := Pack(1024, 1, Ready)

	status, ok := PairStatus(w0, w1)
	if !ok || status != Ready {
		t.Errorf("PairStatus(ready pair) = %v, %v; want Ready, true", status, ok)
	}

	// One half advanced to Inclusive, the other still Ready: torn.
	torn := Pack(2048, 1, Inclusive)
	if _, ok := PairStatus(w0, torn); ok {
		t.Error("PairStatus(torn pair) reported ok")
	}
}

func TestStatusString(t *testing.T) {
	if NotReady.String() != "NotReady" || Ready.String() != "Ready" || Inclusive.String() != "Inclusive" {
		t.Error("unexpected status names")
	}
	if Status(0xC0000000).String() == "" {
		t.Error("unknown status should still format")
	}
}
