package openpgp

import (
	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// GET DATA / PUT DATA: the tag-addressed data objects of the OpenPGP
// application. Simple DOs pass through the store; constructed DOs (65, 6E,
// 73, 7A) are assembled from their members on every read.

// Data object tags, per OpenPGP card specification v2 chapter 4.4.1.
const (
	tagAID            = 0x004F
	tagExtHeaderList  = 0x004D
	tagName           = 0x005B
	tagLoginData      = 0x005E
	tagCardholderData = 0x0065
	tagAppData        = 0x006E
	tagDiscretionary  = 0x0073
	tagSecuritySupp   = 0x007A
	tagSigCounter     = 0x0093
	tagExtCaps        = 0x00C0
	tagAlgoAttrSign   = 0x00C1
	tagAlgoAttrDec    = 0x00C2
	tagAlgoAttrAuth   = 0x00C3
	tagPWStatus       = 0x00C4
	tagFingerprints   = 0x00C5
	tagCAFingerprints = 0x00C6
	tagFPSign         = 0x00C7
	tagFPDec          = 0x00C8
	tagFPAuth         = 0x00C9
	tagCAFP1          = 0x00CA
	tagCAFP2          = 0x00CB
	tagCAFP3          = 0x00CC
	tagGenDates       = 0x00CD
	tagGenDateSign    = 0x00CE
	tagGenDateDec     = 0x00CF
	tagGenDateAuth    = 0x00D0
	tagResettingCode  = 0x00D3
	tagLanguage       = 0x5F2D
	tagSalutation     = 0x5F35
	tagURL            = 0x5F50
	tagHistBytes      = 0x5F52
	tagPrivate1       = 0x0101
	tagPrivate2       = 0x0102
	tagPrivate3       = 0x0103
	tagPrivate4       = 0x0104
	tagCertificate    = 0x7F21
	tagCommandChained = 0x3FFF
)

// extendedCapabilities: secure messaging absent, no get-challenge, key
// import supported, PW status changeable, private DOs present.
var extendedCapabilities = tlv.Hex("38 00 00 20 08 00 00 FF 01 00")

// algorithmAttributesRSA2048: RSA, 2048-bit modulus, 32-bit public
// exponent, standard import format (e, p, q).
var algorithmAttributesRSA2048 = tlv.Hex("01 08 00 00 20 00")

const (
	fingerprintSize = 20
	genDateSize     = 4
	maxSimpleDOSize = 254
	maxNameSize     = 39
)

// cmdGetData implements GET DATA (INS CA). Only valid with the OpenPGP DF
// selected.
func (t *Token) cmdGetData(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if t.file != fileDFOpenPGP {
		return iso7816.NewStatusResponse(iso7816.SWNoRecord)
	}
	return t.getData(cmd.Tag())
}

func (t *Token) getData(tag uint16) *iso7816.ResponseAPDU {
	switch tag {
	case tagAID:
		return iso7816.NewResponse(t.AID(), iso7816.SWSuccess)

	case tagHistBytes:
		return iso7816.NewResponse(t.cfg.HistoricalBytes, iso7816.SWSuccess)

	case tagCardholderData:
		return t.encodeTLVs(t.cardholderData())

	case tagAppData:
		return t.encodeTLVs(t.applicationData())

	case tagDiscretionary:
		return t.encodeTLVs(t.discretionaryData())

	case tagSecuritySupp:
		return t.encodeTLVs([]bertlv.TLV{{Tag: "93", Value: t.store.signatureCounterBytes()}})

	case tagSigCounter:
		return iso7816.NewResponse(t.store.signatureCounterBytes(), iso7816.SWSuccess)

	case tagExtCaps:
		return iso7816.NewResponse(extendedCapabilities, iso7816.SWSuccess)

	case tagAlgoAttrSign, tagAlgoAttrDec, tagAlgoAttrAuth:
		return iso7816.NewResponse(algorithmAttributesRSA2048, iso7816.SWSuccess)

	case tagPWStatus:
		return iso7816.NewResponse(t.pwStatusBytes(), iso7816.SWSuccess)

	case tagFingerprints:
		return iso7816.NewResponse(t.concatDOs(fingerprintSize, tagFPSign, tagFPDec, tagFPAuth), iso7816.SWSuccess)

	case tagCAFingerprints:
		return iso7816.NewResponse(t.concatDOs(fingerprintSize, tagCAFP1, tagCAFP2, tagCAFP3), iso7816.SWSuccess)

	case tagGenDates:
		return iso7816.NewResponse(t.concatDOs(genDateSize, tagGenDateSign, tagGenDateDec, tagGenDateAuth), iso7816.SWSuccess)

	case tagName, tagLanguage, tagSalutation, tagURL, tagLoginData,
		tagCertificate, tagPrivate1, tagPrivate2:
		return t.getSimpleDO(tag)

	case tagPrivate3:
		if !t.ac.psoOther {
			return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
		}
		return t.getSimpleDO(tag)

	case tagPrivate4:
		if !t.ac.admin {
			return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
		}
		return t.getSimpleDO(tag)

	default:
		return iso7816.NewStatusResponse(iso7816.SWRefDataNotFound)
	}
}

func (t *Token) getSimpleDO(tag uint16) *iso7816.ResponseAPDU {
	value, ok, err := t.store.getDO(tag)
	if err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}
	if !ok {
		return iso7816.NewStatusResponse(iso7816.SWRefDataNotFound)
	}
	return iso7816.NewResponse(value, iso7816.SWSuccess)
}

func (t *Token) encodeTLVs(packets []bertlv.TLV) *iso7816.ResponseAPDU {
	encoded, err := bertlv.Encode(packets)
	if err != nil {
		t.log.Warn("TLV encode failed", "err", err)
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	return iso7816.NewResponse(encoded, iso7816.SWSuccess)
}

// cardholderData assembles the members of DO 65 that are present.
func (t *Token) cardholderData() []bertlv.TLV {
	var packets []bertlv.TLV
	for _, entry := range []struct {
		tag  uint16
		name string
	}{
		{tagName, "5B"},
		{tagLanguage, "5F2D"},
		{tagSalutation, "5F35"},
	} {
		if value, ok, err := t.store.getDO(entry.tag); err == nil && ok {
			packets = append(packets, bertlv.TLV{Tag: entry.name, Value: value})
		}
	}
	return packets
}

// applicationData assembles DO 6E.
func (t *Token) applicationData() []bertlv.TLV {
	return []bertlv.TLV{
		{Tag: "4F", Value: t.AID()},
		{Tag: "5F52", Value: t.cfg.HistoricalBytes},
		{Tag: "73", TLVs: t.discretionaryData()},
	}
}

// discretionaryData assembles DO 73.
func (t *Token) discretionaryData() []bertlv.TLV {
	return []bertlv.TLV{
		{Tag: "C0", Value: extendedCapabilities},
		{Tag: "C1", Value: algorithmAttributesRSA2048},
		{Tag: "C2", Value: algorithmAttributesRSA2048},
		{Tag: "C3", Value: algorithmAttributesRSA2048},
		{Tag: "C4", Value: t.pwStatusBytes()},
		{Tag: "C5", Value: t.concatDOs(fingerprintSize, tagFPSign, tagFPDec, tagFPAuth)},
		{Tag: "C6", Value: t.concatDOs(fingerprintSize, tagCAFP1, tagCAFP2, tagCAFP3)},
		{Tag: "CD", Value: t.concatDOs(genDateSize, tagGenDateSign, tagGenDateDec, tagGenDateAuth)},
	}
}

// pwStatusBytes renders DO C4: validity flag, maximum password lengths, and
// the remaining attempts per credential.
func (t *Token) pwStatusBytes() []byte {
	validity := byte(0)
	if t.pw1ValidForSeveral() {
		validity = 1
	}
	return []byte{
		validity,
		127, 127, 127,
		t.remainingAttempts(credPW1),
		t.remainingAttempts(credRC),
		t.remainingAttempts(credPW3),
	}
}

// concatDOs joins fixed-size member DOs, zero-filling absent ones.
func (t *Token) concatDOs(size int, tags ...uint16) []byte {
	out := make([]byte, 0, size*len(tags))
	for _, tag := range tags {
		value, ok, err := t.store.getDO(tag)
		if err != nil || !ok || len(value) != size {
			value = make([]byte, size)
		}
		out = append(out, value...)
	}
	return out
}

// cmdPutData implements PUT DATA (INS DA) and PUT DATA odd (INS DB). Only
// valid with the OpenPGP DF selected.
//
// The payload is located from the authoritative total length: everything
// after the five header bytes, minus the two extra Lc bytes once the
// remainder reaches the extended threshold.
func (t *Token) cmdPutData(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if t.file != fileDFOpenPGP {
		return iso7816.NewStatusResponse(iso7816.SWNoRecord)
	}

	var data []byte
	if len(cmd.Raw) > iso7816.ShortDataOffset {
		data = cmd.Raw[iso7816.ShortDataOffset:]
		if len(data) >= 256 {
			// Extended Lc
			data = data[2:]
		}
	}

	return t.putData(cmd.Tag(), data)
}

func (t *Token) putData(tag uint16, data []byte) *iso7816.ResponseAPDU {
	switch tag {
	case tagName:
		return t.putSimpleDO(tag, data, maxNameSize, t.ac.admin)

	case tagLanguage:
		return t.putSimpleDO(tag, data, 8, t.ac.admin)

	case tagSalutation:
		return t.putSimpleDO(tag, data, 1, t.ac.admin)

	case tagURL, tagLoginData:
		return t.putSimpleDO(tag, data, maxSimpleDOSize, t.ac.admin)

	case tagCertificate:
		return t.putSimpleDO(tag, data, 1216, t.ac.admin)

	case tagPrivate1, tagPrivate3:
		return t.putSimpleDO(tag, data, maxSimpleDOSize, t.ac.psoOther)

	case tagPrivate2, tagPrivate4:
		return t.putSimpleDO(tag, data, maxSimpleDOSize, t.ac.admin)

	case tagFPSign, tagFPDec, tagFPAuth, tagCAFP1, tagCAFP2, tagCAFP3:
		return t.putFixedDO(tag, data, fingerprintSize)

	case tagGenDateSign, tagGenDateDec, tagGenDateAuth:
		return t.putFixedDO(tag, data, genDateSize)

	case tagPWStatus:
		if !t.ac.admin {
			return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
		}
		if len(data) < 1 || data[0] > 1 {
			return iso7816.NewStatusResponse(iso7816.SWWrongData)
		}
		if err := t.store.setPWStatusByte(data[0]); err != nil {
			return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
		}
		return iso7816.NewStatusResponse(iso7816.SWSuccess)

	case tagResettingCode:
		return t.putResettingCode(data)

	case tagExtHeaderList, tagCommandChained:
		return t.importKey(data)

	default:
		return iso7816.NewStatusResponse(iso7816.SWRefDataNotFound)
	}
}

func (t *Token) putSimpleDO(tag uint16, data []byte, maxLen int, authorized bool) *iso7816.ResponseAPDU {
	if !authorized {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}
	if len(data) > maxLen {
		return iso7816.NewStatusResponse(iso7816.SWWrongData)
	}
	if err := t.store.putDO(tag, data); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}

func (t *Token) putFixedDO(tag uint16, data []byte, size int) *iso7816.ResponseAPDU {
	if !t.ac.admin {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}
	if len(data) != size {
		return iso7816.NewStatusResponse(iso7816.SWWrongData)
	}
	if err := t.store.putDO(tag, data); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}

// putResettingCode installs or clears the resetting code. The stored form
// is a keystring record (length byte plus digest); an empty payload clears
// it. Either way the RC error counter resets in the same transaction.
func (t *Token) putResettingCode(data []byte) *iso7816.ResponseAPDU {
	if !t.ac.admin {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	if len(data) == 0 {
		if err := t.store.deleteRCRecord(); err != nil {
			return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
		}
		return iso7816.NewStatusResponse(iso7816.SWSuccess)
	}

	if len(data) < 8 || len(data) > 127 {
		return iso7816.NewStatusResponse(iso7816.SWWrongData)
	}
	rec := &keystringRecord{Length: len(data), Digest: Keystring(data)}
	if err := t.store.storeRCRecord(rec); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}
