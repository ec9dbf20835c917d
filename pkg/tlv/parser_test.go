package tlv

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type holderData struct {
	Name     []byte       `tlv:"5B" fmt:"ascii"`
	Language []byte       `tlv:"5F2D" fmt:"ascii"`
	Unknown  []bertlv.TLV `tlv:",unknown"`
}

type appData struct {
	AID           []byte         `tlv:"4F"`
	Discretionary *discretionary `tlv:"73"`
}

type discretionary struct {
	PWStatus []byte `tlv:"C4"`
}

func TestUnmarshalFlat(t *testing.T) {
	raw := Hex("5B 09 446F653C3C4A6F686E", "5F2D 02 656E")

	var got holderData
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !bytes.Equal(got.Name, []byte("Doe<<John")) {
		t.Errorf("Name = %q", got.Name)
	}
	if !bytes.Equal(got.Language, []byte("en")) {
		t.Errorf("Language = %q", got.Language)
	}
}

func TestUnmarshalCollectsUnknown(t *testing.T) {
	raw := Hex("5B 03 414243", "99 01 FF")

	var got holderData
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	expected := []bertlv.TLV{{Tag: "99", Value: []byte{0xFF}}}
	if diff := cmp.Diff(expected, got.Unknown); diff != "" {
		t.Errorf("Unknown mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalNested(t *testing.T) {
	raw := Hex("4F 06 D276000124 01", "73 09 C4 07 00 7F7F7F 030303")

	var got appData
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if got.Discretionary == nil {
		t.Fatal("nested template was not allocated")
	}
	if len(got.Discretionary.PWStatus) != 7 {
		t.Errorf("PWStatus = % X", got.Discretionary.PWStatus)
	}
}

func TestUnmarshalRejectsNonPointer(t *testing.T) {
	var target holderData
	if err := Unmarshal(Hex("5B 01 41"), target); err == nil {
		t.Error("expected error for non-pointer target")
	}
}

func TestGetValue(t *testing.T) {
	raw := Hex("5B 03 414243", "93 03 000002")

	value, err := GetValue(raw, 0x93)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if !bytes.Equal(value, []byte{0x00, 0x00, 0x02}) {
		t.Errorf("value = % X", value)
	}

	if _, err := GetValue(raw, 0xC4); err == nil {
		t.Error("expected error for absent tag")
	}
}
