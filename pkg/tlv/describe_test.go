package tlv

import (
	"strings"
	"testing"

	"github.com/moov-io/bertlv"
)

type describeFixture struct {
	Name    []byte       `tlv:"5B" fmt:"ascii"`
	Counter []byte       `tlv:"93" fmt:"int"`
	Blob    []byte       `tlv:"C0"`
	Empty   []byte       `tlv:"5E"`
	Unknown []bertlv.TLV `tlv:",unknown"`
}

func TestDescribe(t *testing.T) {
	report := Describe("FIXTURE", &describeFixture{
		Name:    []byte("Doe<<John"),
		Counter: []byte{0x00, 0x00, 0x02},
		Blob:    []byte{0xDE, 0xAD},
		Unknown: []bertlv.TLV{{Tag: "9F01", Value: []byte{0x12, 0x34}}},
	})

	for _, want := range []string{
		"=== FIXTURE ===",
		`"Doe<<John"`,  // ascii formatting
		"Counter (93): 2", // int formatting
		"dead",            // hex fallback
		"9F01",            // unmapped packet listed
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	if strings.Contains(report, "Empty") {
		t.Error("absent fields must be omitted")
	}
}

func TestDescribeNilPointer(t *testing.T) {
	var fixture *describeFixture
	report := Describe("EMPTY", fixture)
	if !strings.Contains(report, "=== EMPTY ===") {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestDescribeNonPrintableASCIIFallsBack(t *testing.T) {
	report := Describe("BIN", &describeFixture{Name: []byte{0x00, 0x01}})
	if !strings.Contains(report, "0001") {
		t.Errorf("expected hex fallback, got:\n%s", report)
	}
}
