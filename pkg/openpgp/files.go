package openpgp

import (
	"bytes"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/tlv"
)

// SELECT FILE and READ BINARY: the small ISO 7816 file system surrounding
// the OpenPGP DF. The card exposes the MF, the OpenPGP application DF, and
// the EF.GDO serial file; nothing else is selectable.

// selectMFTemplate is the fixed directory information returned for a SELECT
// of the MF. Bytes 2-3 are a placeholder for the current byte total of the
// data object store, patched little-endian before transmission.
var selectMFTemplate = tlv.Hex(
	"00 00", // unused
	"0B 10", // number of bytes in this directory (patched)
	"3F 00", // identifier of the selected file: MF
	"38",    // file type: DF
	"FF",    // unused
	"FF 44 44", // access conditions
	"01",    // file status: OK, unblocked
	"05",    // following data bytes
	"03",    // features
	"01",    // number of subdirectories (OpenPGP DF)
	"01",    // number of elementary files (serial number)
	"00",    // number of secret codes
	"00",    // unused
	"00 00", // PIN status
)

var (
	fileIDMF     = []byte{0x3F, 0x00}
	fileIDSerial = []byte{0x2F, 0x02}
)

// cmdSelectFile implements SELECT FILE (INS A4).
//
// Selection by DF name (P1=4) always lands on the OpenPGP application; the
// AID payload itself is not checked. Selection by file identifier knows the
// MF (3F00) and EF.GDO (2F02). Everything else deselects and reports no
// file.
func (t *Token) cmdSelectFile(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	switch {
	case cmd.P1 == 0x04:
		t.file = fileDFOpenPGP
		return iso7816.NewStatusResponse(iso7816.SWSuccess)

	case bytes.Equal(cmd.Data, fileIDSerial):
		t.file = fileEFSerial
		return iso7816.NewStatusResponse(iso7816.SWSuccess)

	case bytes.Equal(cmd.Data, fileIDMF):
		t.file = fileMF
		if cmd.P2 == 0x0C {
			// No response data requested.
			return iso7816.NewStatusResponse(iso7816.SWSuccess)
		}
		return iso7816.NewResponse(t.mfDirectoryInfo(), iso7816.SWSuccess)

	default:
		t.file = fileNone
		return iso7816.NewStatusResponse(iso7816.SWNoFile)
	}
}

// mfDirectoryInfo patches the immutable template with the store's current
// byte total.
func (t *Token) mfDirectoryInfo() []byte {
	out := make([]byte, len(selectMFTemplate))
	copy(out, selectMFTemplate)

	total := t.store.totalBytes()
	out[2] = byte(total)
	out[3] = byte(total >> 8)
	return out
}

// cmdReadBinary implements READ BINARY (INS B0), valid only on EF.GDO: it
// returns the serial number record, tag 5A followed by the application
// identifier whose first byte is its own length.
func (t *Token) cmdReadBinary(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if t.file != fileEFSerial {
		return iso7816.NewStatusResponse(iso7816.SWNoRecord)
	}

	if cmd.P2 >= 6 {
		return iso7816.NewStatusResponse(iso7816.SWBadP1P2)
	}

	aid := t.cfg.AID
	record := make([]byte, 0, len(aid)+2)
	record = append(record, 0x5A, byte(len(aid)))
	record = append(record, aid...)
	return iso7816.NewResponse(record, iso7816.SWSuccess)
}
