package codec

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		dataType  DataType
		wordOrder WordOrder
		value     float64
		scale     float64
	}{
		{"u16 AB", U16, AB, 1234, 1},
		{"s16 BA", S16, BA, -55, 1},
		{"u32 ABCD", U32, ABCD, 123456789, 1},
		{"s32 DCBA", S32, DCBA, -987654321, 1},
		{"u32 BADC", U32, BADC, 0xDEADBEEF, 1},
		{"u32 CDAB", U32, CDAB, 1000000, 1},
		{"f32 ABCD", F32, ABCD, 3.5, 1},
		{"f64 ABCD", F64, ABCD, 3.125, 1},
		{"u64 ABCD", U64, ABCD, 1 << 40, 1},
		{"s64 DCBA", S64, DCBA, -(1 << 40), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			regs, err := Encode(tc.value, tc.dataType, tc.wordOrder, tc.scale)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(regs, tc.dataType, tc.wordOrder, tc.scale, 3)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tc.value {
				t.Errorf("round trip mismatch: got %v, want %v", got, tc.value)
			}
		})
	}
}

// This fixture pins the natural (no-swap) big-endian interpretation of two
// registers: the wire pair [0x0001, 0x0000] combines to 0x00010000 with no
// word reordering applied. It is grounded in the standard big-endian word
// order used throughout the corpus's register decoders, not the
// self-contradictory aside in the distilled word-order scenario (which
// claims this exact result for word_order=BA, a swapped order — see
// DESIGN.md).
func TestNaturalWordOrderCombinesHighWordFirst(t *testing.T) {
	got, err := Decode([]uint16{0x0001, 0x0000}, U32, ABCD, 1, 3)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 65536 {
		t.Errorf("Decode(ABCD) = %v, want 65536", got)
	}
}

func TestSwappedWordOrderReversesRegisters(t *testing.T) {
	got, err := Decode([]uint16{0x0001, 0x0000}, U32, CDAB, 1, 3)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 1 {
		t.Errorf("Decode(CDAB) = %v, want 1", got)
	}
}

func TestIntegerScaleOneStaysExact(t *testing.T) {
	got, err := Decode([]uint16{42}, U16, AB, 1.0, 3)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 42 {
		t.Errorf("Decode = %v, want exact 42", got)
	}
}

func TestScaleAppliesHalfAwayFromZeroRounding(t *testing.T) {
	got, err := Decode([]uint16{uint16(int16(-55))}, S16, AB, 0.1, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != -5.5 {
		t.Errorf("Decode = %v, want -5.5", got)
	}
}
