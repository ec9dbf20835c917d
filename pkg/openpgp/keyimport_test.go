package openpgp

import (
	"crypto/rsa"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/tlv"
)

// importPayload builds the extended header list for an RSA key, the same
// structure GnuPG sends: 4D { CRT, 7F48 cardinality, 5F48 material }.
func importPayload(t *testing.T, ref iso7816.KeyRef, key *rsa.PrivateKey) []byte {
	t.Helper()

	e := []byte{byte(key.E >> 24), byte(key.E >> 16), byte(key.E >> 8), byte(key.E)}
	p := key.Primes[0].Bytes()
	q := key.Primes[1].Bytes()

	derLen := func(n int) []byte {
		switch {
		case n < 0x80:
			return []byte{byte(n)}
		case n <= 0xFF:
			return []byte{0x81, byte(n)}
		default:
			return []byte{0x82, byte(n >> 8), byte(n)}
		}
	}

	var cardinality []byte
	for _, field := range []struct {
		tag byte
		n   int
	}{{0x91, len(e)}, {0x92, len(p)}, {0x93, len(q)}} {
		cardinality = append(cardinality, field.tag)
		cardinality = append(cardinality, derLen(field.n)...)
	}

	var inner []byte
	inner = append(inner, byte(ref), 0x00)
	inner = append(inner, 0x7F, 0x48)
	inner = append(inner, derLen(len(cardinality))...)
	inner = append(inner, cardinality...)
	inner = append(inner, 0x5F, 0x48)
	inner = append(inner, derLen(len(p)+len(q)+len(e))...)
	inner = append(inner, e...)
	inner = append(inner, p...)
	inner = append(inner, q...)

	var payload []byte
	payload = append(payload, 0x4D)
	payload = append(payload, derLen(len(inner))...)
	payload = append(payload, inner...)
	return payload
}

func TestKeyImportAndSign(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	key := testRSAKey(t)

	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW3, DefaultPW3))

	resp := send(t, tok, iso7816.PutDataOdd(testClass(t), 0x3FFF, importPayload(t, iso7816.KeySign, key)))
	require.Equal(t, iso7816.SWSuccess, resp.Status)

	// The imported key is immediately usable with the factory PW1.
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1))

	digest := sha1.Sum([]byte("imported key signs"))
	digestInfo := sha1DigestInfo(digest)

	resp = send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
	require.Equal(t, iso7816.SWSuccess, resp.Status)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, 0, digestInfo, resp.Data))
}

func TestKeyImportRequiresAdmin(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	resp := send(t, tok, iso7816.PutDataOdd(testClass(t), 0x3FFF, importPayload(t, iso7816.KeySign, testRSAKey(t))))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
}

func TestKeyImportRejectsMalformedTemplate(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW3, DefaultPW3))

	for name, payload := range map[string][]byte{
		"no templates":   tlv.Hex("4D 02 B6 00"),
		"bad CRT":        tlv.Hex("4D 08 99 00 7F48 03 91 01 04"),
		"material short": tlv.Hex("4D 0E B6 00 7F48 06 91 01 92 01 93 01 5F48 00"),
	} {
		resp := send(t, tok, iso7816.PutDataOdd(testClass(t), 0x3FFF, payload))
		assert.Equal(t, iso7816.SWWrongData, resp.Status, "case %s", name)
	}
}

func TestKeyImportResetsSignatureCounter(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	require.NoError(t, tok.store.bumpSignatureCounter())

	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW3, DefaultPW3))
	resp := send(t, tok, iso7816.PutDataOdd(testClass(t), 0x3FFF, importPayload(t, iso7816.KeySign, testRSAKey(t))))
	require.Equal(t, iso7816.SWSuccess, resp.Status)

	assert.Zero(t, tok.store.signatureCounter())
}

func TestPublicKeyReadback(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)

	resp := send(t, tok, iso7816.ReadPublicKey(testClass(t), iso7816.KeySign))
	require.Equal(t, iso7816.SWSuccess, resp.Status)

	template, err := tlv.GetValue(resp.Data, 0x7F49)
	require.NoError(t, err)
	modulus, err := tlv.GetValue(template, 0x81)
	require.NoError(t, err)
	assert.Equal(t, testRSAKey(t).N.Bytes(), modulus)

	exponent, err := tlv.GetValue(template, 0x82)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x01}, exponent)
}

func TestPublicKeyReadbackAbsent(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	resp := send(t, tok, iso7816.ReadPublicKey(testClass(t), iso7816.KeyAuth))
	assert.Equal(t, iso7816.SWRefDataNotFound, resp.Status)
}

// The unauthorized generation path must answer with the security status
// alone, not fall through to another status write.
func TestGenerateWithoutAdminIsRefused(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	resp := sendRaw(t, tok, tlv.Hex("00 47 80 00 02 B6 00"))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
}

func TestGenerateOnDeviceUnsupported(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW3, DefaultPW3))

	resp := sendRaw(t, tok, tlv.Hex("00 47 80 00 02 B6 00"))
	assert.Equal(t, iso7816.SWGenericError, resp.Status)
}
