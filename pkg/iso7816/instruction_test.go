package iso7816

import (
	"strings"
	"testing"
)

func TestNewInstructionRejectsReservedRanges(t *testing.T) {
	for _, ins := range []InsCode{0x60, 0x6D, 0x90, 0x9F} {
		if _, err := NewInstruction(ins); err == nil {
			t.Errorf("INS %02X must be rejected", byte(ins))
		}
	}
}

func TestNewInstructionAcceptsApplicationSet(t *testing.T) {
	for _, ins := range []InsCode{
		InsVerify, InsChangeReferenceData, InsPerformSecurityOperation,
		InsResetRetryCounter, InsGenerateAsymmetricKeyPair,
		InsInternalAuthenticate, InsSelectFile, InsReadBinary,
		InsGetResponse, InsGetData, InsPutData, InsPutDataOdd,
	} {
		if _, err := NewInstruction(ins); err != nil {
			t.Errorf("INS %02X rejected: %v", byte(ins), err)
		}
	}
}

func TestInsCodeString(t *testing.T) {
	if got := InsVerify.String(); got != "VERIFY" {
		t.Errorf("String() = %q", got)
	}
	if got := InsCode(0x42).String(); !strings.Contains(got, "42") {
		t.Errorf("unknown INS should include the byte: %q", got)
	}
}

func TestInstructionVerbose(t *testing.T) {
	ins := mustIns(InsGetData)
	got := ins.Verbose()
	if !strings.Contains(got, "0xCA") || !strings.Contains(got, "GET DATA") {
		t.Errorf("Verbose() = %q", got)
	}
}
