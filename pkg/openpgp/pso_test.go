package openpgp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

func signReady(t *testing.T) (*Token, []byte) {
	t.Helper()
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1))

	digest := sha1.Sum([]byte("message to sign"))
	return tok, sha1DigestInfo(digest)
}

func TestSignatureRoundTrip(t *testing.T) {
	tok, digestInfo := signReady(t)

	resp := send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
	require.Equal(t, iso7816.SWSuccess, resp.Status)
	require.Len(t, resp.Data, 256)

	err := rsa.VerifyPKCS1v15(&testRSAKey(t).PublicKey, 0, digestInfo, resp.Data)
	assert.NoError(t, err)
}

// Scenario: with PW1 valid for one signature only, the second PSO:CDS in a
// row is refused.
func TestSignatureSingleShot(t *testing.T) {
	tok, digestInfo := signReady(t)

	resp := send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
	require.Equal(t, iso7816.SWSuccess, resp.Status)

	resp = send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
	assert.False(t, tok.ac.psoCDS)
}

func TestSignatureSurvivesWithLongLivedPW1(t *testing.T) {
	tok, digestInfo := signReady(t)
	require.NoError(t, tok.store.setPWStatusByte(1))

	for i := 0; i < 3; i++ {
		resp := send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
		require.Equal(t, iso7816.SWSuccess, resp.Status)
	}
	assert.True(t, tok.ac.psoCDS)
}

func TestSignatureWithoutAuthorization(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)

	digest := sha1.Sum([]byte("message"))
	resp := send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), sha1DigestInfo(digest)))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
}

func TestSignatureRejectsWrongDigestInfoLength(t *testing.T) {
	tok, _ := signReady(t)

	resp := send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), make([]byte, 34)))
	assert.Equal(t, iso7816.SWGenericError, resp.Status)
}

func TestSignatureIncrementsCounter(t *testing.T) {
	tok, digestInfo := signReady(t)
	require.Zero(t, tok.store.signatureCounter())

	send(t, tok, iso7816.ComputeDigitalSignature(testClass(t), digestInfo))
	assert.Equal(t, uint32(1), tok.store.signatureCounter())
}

func TestDecipherRoundTrip(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Other, DefaultPW1))

	plaintext := []byte("session key material")
	cryptogram, err := rsa.EncryptPKCS1v15(rand.Reader, &testRSAKey(t).PublicKey, plaintext)
	require.NoError(t, err)

	resp := send(t, tok, iso7816.Decipher(testClass(t), cryptogram))
	require.Equal(t, iso7816.SWSuccess, resp.Status)
	assert.Equal(t, plaintext, resp.Data)

	// The decrypt authorization is consumed.
	assert.False(t, tok.ac.psoOther)
}

func TestDecipherWithoutAuthorization(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)

	resp := send(t, tok, iso7816.Decipher(testClass(t), make([]byte, 256)))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
}

func TestDecipherResetsPW1CounterOnUnwrap(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)

	verifyPW(t, tok, iso7816.RefPW1Other, "bad000")
	verifyPW(t, tok, iso7816.RefPW1Other, DefaultPW1)
	require.Zero(t, tok.store.errorCounter(credPW1))

	// A failure counted after the verification is cleared by the unwrap.
	tok.store.bumpErrorCounter(credPW1)
	require.Equal(t, uint8(1), tok.store.errorCounter(credPW1))

	cryptogram, err := rsa.EncryptPKCS1v15(rand.Reader, &testRSAKey(t).PublicKey, []byte("x"))
	require.NoError(t, err)

	resp := send(t, tok, iso7816.Decipher(testClass(t), cryptogram))
	require.Equal(t, iso7816.SWSuccess, resp.Status)
	assert.Zero(t, tok.store.errorCounter(credPW1))
}

func TestUnsupportedPSOCombination(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	resp := sendRaw(t, tok, []byte{0x00, 0x2A, 0x11, 0x22, 0x01, 0x00})
	assert.Equal(t, iso7816.SWGenericError, resp.Status)
}

func TestInternalAuthenticate(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)
	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Other, DefaultPW1))

	challenge := make([]byte, 36)
	for i := range challenge {
		challenge[i] = byte(i)
	}

	resp := send(t, tok, iso7816.InternalAuthenticate(testClass(t), challenge))
	require.Equal(t, iso7816.SWSuccess, resp.Status)

	err := rsa.VerifyPKCS1v15(&testRSAKey(t).PublicKey, 0, challenge, resp.Data)
	assert.NoError(t, err)
	assert.False(t, tok.ac.psoOther, "authorization is single-use")
}

func TestInternalAuthenticateRejectsParameters(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	resp := sendRaw(t, tok, []byte{0x00, 0x88, 0x01, 0x00, 0x01, 0x00})
	assert.Equal(t, iso7816.SWGenericError, resp.Status)
}

func TestInternalAuthenticateWithoutAuthorization(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)

	resp := send(t, tok, iso7816.InternalAuthenticate(testClass(t), []byte("challenge")))
	assert.Equal(t, iso7816.SWSecurityFailure, resp.Status)
}
