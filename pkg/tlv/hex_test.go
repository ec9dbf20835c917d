package tlv

import (
	"bytes"
	"testing"
)

func TestHex(t *testing.T) {
	if got := Hex("00 A4 04 00"); !bytes.Equal(got, []byte{0x00, 0xA4, 0x04, 0x00}) {
		t.Errorf("Hex = % X", got)
	}

	// Parts concatenate regardless of grouping.
	a := Hex("D276", "0001", "2401")
	b := Hex("D2 76 00 01 24 01")
	if !bytes.Equal(a, b) {
		t.Errorf("grouping changed the result: % X vs % X", a, b)
	}
}

func TestHexPanicsOnInvalidInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid hex")
		}
	}()
	Hex("zz")
}
