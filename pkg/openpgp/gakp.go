package openpgp

import (
	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/moov-io/bertlv"
)

// cmdGenerateKeyPair implements GENERATE ASYMMETRIC KEY PAIR (INS 47).
//
// P1 81 is the reading mode: it returns the public key template (7F49 with
// modulus 81 and exponent 82) of the slot named by the control reference
// template, which the command layout places at absolute offset 7. Anything
// else would be on-device generation, which this application does not
// perform: it demands the admin authorization and then reports failure.
func (t *Token) cmdGenerateKeyPair(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if cmd.P1 != 0x81 {
		if !t.ac.admin {
			return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
		}
		// On-device generation not supported.
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	if len(cmd.Raw) < 8 {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	ref := iso7816.KeyRef(cmd.Raw[7])

	blob, status := t.store.keyBlobFor(ref)
	switch status {
	case loadAbsent:
		return iso7816.NewStatusResponse(iso7816.SWRefDataNotFound)
	case loadIOFail:
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	case loadCryptoFail:
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	encoded, err := bertlv.Encode([]bertlv.TLV{{
		Tag: "7F49",
		TLVs: []bertlv.TLV{
			{Tag: "81", Value: blob.modulus},
			{Tag: "82", Value: blob.exponent},
		},
	}})
	if err != nil {
		t.log.Warn("public key encode failed", "err", err)
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	return iso7816.NewResponse(encoded, iso7816.SWSuccess)
}
