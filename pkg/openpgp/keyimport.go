package openpgp

import (
	"crypto/rsa"
	"math/big"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// Private key import via PUT DATA odd, OpenPGP card v2 chapter 4.4.3.8.
//
// The payload is an extended header list (tag 4D): a control reference
// template naming the target slot (B6/B8/A4), a cardinality template (7F48)
// listing the lengths of the following fields, and the concatenated key
// material itself (5F48) as public exponent, prime p, prime q.
//
// The 7F48 template cannot go through a BER decoder: it holds tag-length
// headers WITHOUT values. A small manual walker handles the whole structure.

// Field tags inside 7F48.
const (
	fieldPublicExponent = 0x91
	fieldPrimeP         = 0x92
	fieldPrimeQ         = 0x93
)

type keyImportTemplate struct {
	ref          iso7816.KeyRef
	fieldLengths map[int]int // 7F48 field tag -> byte length in 5F48
	material     []byte      // 5F48 content
}

// importKey parses the extended header list and installs the private key.
// Import requires a prior admin verification; the installed key's DEK is
// wrapped for every credential whose keystring is currently derivable.
func (t *Token) importKey(data []byte) *iso7816.ResponseAPDU {
	if !t.ac.admin {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	tmpl, ok := parseKeyImportTemplate(data)
	if !ok {
		return iso7816.NewStatusResponse(iso7816.SWWrongData)
	}

	key, ok := assembleRSAKey(tmpl)
	if !ok {
		return iso7816.NewStatusResponse(iso7816.SWWrongData)
	}

	slots := t.importSlots()
	blob, err := newKeyBlob(t.cfg.Rand, key, slots)
	if err != nil {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	if err := t.store.storeKeyBlob(tmpl.ref, blob); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}

	// A fresh signing key starts its use counter over.
	if tmpl.ref == iso7816.KeySign {
		if err := t.store.write(recSigCounter, []byte{0, 0, 0}); err != nil {
			return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
		}
	}

	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}

// importSlots derives the DEK wrapping keystrings available right now. The
// admin keystring is always known (import demands a verified admin); the
// user and resetting-code slots are filled when their digest is on record,
// cached from a verification, or implied by the factory default.
func (t *Token) importSlots() map[Owner][]byte {
	slots := map[Owner][]byte{
		ByAdmin: t.ac.adminKeystring,
	}

	if rec, err := t.store.pw1Record(); err == nil {
		switch {
		case rec == nil:
			slots[ByUser] = Keystring([]byte(DefaultPW1))
		case rec.Digest != nil:
			slots[ByUser] = rec.Digest
		case t.ac.pw1Keystring != nil:
			slots[ByUser] = t.ac.pw1Keystring
		}
	}

	if rec, err := t.store.rcRecord(); err == nil && rec != nil && rec.Digest != nil {
		slots[ByResetCode] = rec.Digest
	}

	return slots
}

func parseKeyImportTemplate(data []byte) (*keyImportTemplate, bool) {
	r := tlvWalker{data: data}

	tag, value, ok := r.next()
	if !ok {
		return nil, false
	}
	if tag == 0x4D {
		r = tlvWalker{data: value}
		tag, value, ok = r.next()
		if !ok {
			return nil, false
		}
	}

	tmpl := &keyImportTemplate{fieldLengths: make(map[int]int)}

	// Control reference template: names the slot, carries no payload.
	switch iso7816.KeyRef(tag) {
	case iso7816.KeySign, iso7816.KeyDec, iso7816.KeyAuth:
		tmpl.ref = iso7816.KeyRef(tag)
	default:
		return nil, false
	}

	for {
		tag, value, ok = r.next()
		if !ok {
			break
		}
		switch tag {
		case 0x7F48:
			if !parseCardinality(value, tmpl.fieldLengths) {
				return nil, false
			}
		case 0x5F48:
			tmpl.material = value
		}
	}

	if len(tmpl.fieldLengths) == 0 || tmpl.material == nil {
		return nil, false
	}
	return tmpl, true
}

// parseCardinality walks the headers-only content of 7F48: tag and length
// per field, no value bytes.
func parseCardinality(data []byte, out map[int]int) bool {
	r := tlvWalker{data: data}
	for r.pos < len(r.data) {
		tag, length, ok := r.header()
		if !ok {
			return false
		}
		out[tag] = length
	}
	return len(out) > 0
}

func assembleRSAKey(tmpl *keyImportTemplate) (*rsa.PrivateKey, bool) {
	eLen := tmpl.fieldLengths[fieldPublicExponent]
	pLen := tmpl.fieldLengths[fieldPrimeP]
	qLen := tmpl.fieldLengths[fieldPrimeQ]
	if eLen == 0 || pLen == 0 || qLen == 0 || eLen+pLen+qLen > len(tmpl.material) {
		return nil, false
	}

	e := new(big.Int).SetBytes(tmpl.material[:eLen])
	p := new(big.Int).SetBytes(tmpl.material[eLen : eLen+pLen])
	q := new(big.Int).SetBytes(tmpl.material[eLen+pLen : eLen+pLen+qLen])

	if !e.IsInt64() || e.Int64() < 3 {
		return nil, false
	}

	n := new(big.Int).Mul(p, q)
	phi := new(big.Int).Mul(
		new(big.Int).Sub(p, big.NewInt(1)),
		new(big.Int).Sub(q, big.NewInt(1)),
	)
	d := new(big.Int).ModInverse(e, phi)
	if d == nil {
		return nil, false
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, false
	}
	return key, true
}

// tlvWalker is a minimal BER-TLV cursor: one- or two-byte tags, short and
// 81/82 long-form lengths.
type tlvWalker struct {
	data []byte
	pos  int
}

// header reads a tag and length without consuming the value.
func (r *tlvWalker) header() (int, int, bool) {
	if r.pos >= len(r.data) {
		return 0, 0, false
	}

	tag := int(r.data[r.pos])
	r.pos++
	if tag&0x1F == 0x1F {
		// Two-byte tag
		if r.pos >= len(r.data) {
			return 0, 0, false
		}
		tag = tag<<8 | int(r.data[r.pos])
		r.pos++
	}

	if r.pos >= len(r.data) {
		return 0, 0, false
	}
	length := int(r.data[r.pos])
	r.pos++
	switch {
	case length == 0x81:
		if r.pos >= len(r.data) {
			return 0, 0, false
		}
		length = int(r.data[r.pos])
		r.pos++
	case length == 0x82:
		if r.pos+1 >= len(r.data) {
			return 0, 0, false
		}
		length = int(r.data[r.pos])<<8 | int(r.data[r.pos+1])
		r.pos += 2
	case length > 0x82:
		return 0, 0, false
	}

	return tag, length, true
}

// next reads a complete tag-length-value entry.
func (r *tlvWalker) next() (int, []byte, bool) {
	tag, length, ok := r.header()
	if !ok {
		return 0, nil, false
	}
	if r.pos+length > len(r.data) {
		return 0, nil, false
	}
	value := r.data[r.pos : r.pos+length]
	r.pos += length
	return tag, value, true
}
