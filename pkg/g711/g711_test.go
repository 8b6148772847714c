package g711

import "testing"

func TestMuLawRoundTripSize(t *testing.T) {
	pcm := make([]int16, 160)
	for i := range pcm {
		pcm[i] = int16(i * 100)
	}
	encoded := EncodeMuLaw(pcm)
	if len(encoded) != len(pcm) {
		t.Fatalf("encoded length = %d, want %d", len(encoded), len(pcm))
	}
	decoded := DecodeMuLaw(encoded)
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded sample count = %d, want %d", len(decoded), len(pcm))
	}
}

func TestMuLawQuasiIdempotent(t *testing.T) {
	for _, s := range []int16{0, 100, -100, 32000, -32000, 1, -1} {
		enc := muLawEncodeTable[pcmIndex(s)]
		dec := muLawDecodeTable[enc]
		diff := int(dec) - int(s)
		if diff < 0 {
			diff = -diff
		}
		if diff > 512 {
			t.Fatalf("mu-law round trip too lossy: in=%d out=%d", s, dec)
		}
	}
}

func TestALawQuasiIdempotent(t *testing.T) {
	for _, s := range []int16{0, 100, -100, 32000, -32000, 1, -1} {
		enc := aLawEncodeTable[pcmIndex(s)]
		dec := aLawDecodeTable[enc]
		diff := int(dec) - int(s)
		if diff < 0 {
			diff = -diff
		}
		if diff > 512 {
			t.Fatalf("a-law round trip too lossy: in=%d out=%d", s, dec)
		}
	}
}

func TestCrossConversionPreservesLength(t *testing.T) {
	pcm := make([]int16, 160)
	mu := EncodeMuLaw(pcm)
	a := MuLawToALaw(mu)
	if len(a) != len(mu) {
		t.Fatalf("cross conversion changed length: %d vs %d", len(a), len(mu))
	}
	back := ALawToMuLaw(a)
	if len(back) != len(mu) {
		t.Fatalf("cross conversion changed length: %d vs %d", len(back), len(mu))
	}
}

func TestSilenceRoundTrips(t *testing.T) {
	pcm := make([]int16, 10)
	mu := EncodeMuLaw(pcm)
	back := DecodeMuLaw(mu)
	for i, v := range back {
		if v != 0 {
			t.Fatalf("sample %d: expected silence to round-trip to 0, got %d", i, v)
		}
	}
}
