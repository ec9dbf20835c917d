package logging

import (
	"log/slog"
	"testing"
)

func TestHexAttr(t *testing.T) {
	attr := Hex("cmd", []byte{0x00, 0xA4, 0x04})
	if attr.Key != "cmd" {
		t.Errorf("Key = %q", attr.Key)
	}
	if got := attr.Value.String(); got != "00a404" {
		t.Errorf("Value = %q, want 00a404", got)
	}
}

func TestHexAttrEmpty(t *testing.T) {
	attr := Hex("resp", nil)
	if got := attr.Value.String(); got != "" {
		t.Errorf("Value = %q, want empty", got)
	}
}

func TestDiscardIsSafe(t *testing.T) {
	l := Discard()
	l.Debug("dropped", slog.String("k", "v"))
	l.Info("dropped")
	l.Warn("dropped")
	l.Error("dropped")
}
