package openpgp

import (
	"crypto/rsa"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// PERFORM SECURITY OPERATION and INTERNAL AUTHENTICATE: the commands that
// actually use the private keys. Both run with PW1's cached keystring; the
// keys never exist unwrapped outside a single handler invocation.

// digestInfoSize is the DER DigestInfo for SHA-1: 15 bytes of structure
// plus the 20-byte digest. PSO:CDS accepts exactly this.
const digestInfoSize = 35

// cmdPerformSecurityOperation implements PSO (INS 2A), dispatching on the
// (P1, P2) pair: 9E9A computes a digital signature, 8086 decrypts.
func (t *Token) cmdPerformSecurityOperation(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	switch {
	case cmd.P1 == 0x9E && cmd.P2 == 0x9A:
		return t.psoComputeSignature(cmd)
	case cmd.P1 == 0x80 && cmd.P2 == 0x86:
		return t.psoDecipher(cmd)
	default:
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
}

func (t *Token) psoComputeSignature(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if !t.ac.psoCDS {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	// The payload must be one complete DigestInfo; beyond it, at most a
	// single Le byte may trail in the buffer.
	if len(cmd.Data) != digestInfoSize || t.trailerLen(cmd) > 1 {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	key, status := t.store.loadPrivateKey(iso7816.KeySign, ByUser, t.ac.pw1Keystring)
	if status != loadOK {
		t.ac.clearPSOCDS()
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	sig, err := rsa.SignPKCS1v15(nil, key, 0, cmd.Data)
	if err != nil {
		t.ac.clearPSOCDS()
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	if !t.pw1ValidForSeveral() {
		t.ac.clearPSOCDS()
	}
	if err := t.store.bumpSignatureCounter(); err != nil {
		t.log.Warn("signature counter write failed", "err", err)
	}

	return iso7816.NewResponse(sig, iso7816.SWSuccess)
}

func (t *Token) psoDecipher(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if t.passwordLocked(credPW1) || !t.ac.psoOther {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	key, resp := t.loadUserKey(iso7816.KeyDec)
	if resp != nil {
		return resp
	}

	t.ac.clearPSOOther()

	// The first payload byte is the RSA padding indicator (00); the
	// cryptogram follows.
	if len(cmd.Data) < 1 {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, cmd.Data[1:])
	if err != nil {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	return iso7816.NewResponse(plaintext, iso7816.SWSuccess)
}

// cmdInternalAuthenticate implements INTERNAL AUTHENTICATE (INS 88): a raw
// PKCS#1 v1.5 signature over the challenge with the authentication key,
// under the same PW1 preconditions as PSO decrypt.
func (t *Token) cmdInternalAuthenticate(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if cmd.P1 != 0x00 || cmd.P2 != 0x00 {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	if t.passwordLocked(credPW1) || !t.ac.psoOther {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	key, resp := t.loadUserKey(iso7816.KeyAuth)
	if resp != nil {
		return resp
	}

	t.ac.clearPSOOther()

	sig, err := rsa.SignPKCS1v15(nil, key, 0, cmd.Data)
	if err != nil {
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}

	return iso7816.NewResponse(sig, iso7816.SWSuccess)
}

// loadUserKey unwraps a key under the cached PW1 keystring, maintaining the
// PW1 error counter: a cryptographic unwrap failure counts as a wrong
// password, a success resets the count.
func (t *Token) loadUserKey(ref iso7816.KeyRef) (*rsa.PrivateKey, *iso7816.ResponseAPDU) {
	key, status := t.store.loadPrivateKey(ref, ByUser, t.ac.pw1Keystring)
	switch status {
	case loadCryptoFail:
		t.store.bumpErrorCounter(credPW1)
		return nil, iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	case loadAbsent:
		return nil, iso7816.NewStatusResponse(iso7816.SWRefDataNotFound)
	case loadIOFail:
		return nil, iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}

	if err := t.store.resetErrorCounter(credPW1); err != nil {
		t.log.Warn("PW1 counter reset failed", "err", err)
	}
	return key, nil
}

// trailerLen counts the bytes after the payload: the Le field.
func (t *Token) trailerLen(cmd *iso7816.Command) int {
	dataStart := iso7816.ShortDataOffset
	if cmd.Extended {
		dataStart = iso7816.ExtendedDataOffset
	}
	return len(cmd.Raw) - dataStart - len(cmd.Data)
}
