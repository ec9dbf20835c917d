package openpgp

import (
	"bytes"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// VerifyResult is the outcome of presenting a password.
type VerifyResult int

const (
	// VerifyFailed: the password is wrong (the error counter advanced).
	VerifyFailed VerifyResult = iota
	// VerifyBlocked: the credential's retry counter is exhausted.
	VerifyBlocked
	// VerifyOK: the password matched; the error counter was reset.
	VerifyOK
)

// cmdVerify implements VERIFY (INS 20). P2 selects the credential and role:
// 81 unlocks PSO:CDS, 82 unlocks decrypt/authenticate, anything else is
// treated as the admin reference.
func (t *Token) cmdVerify(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	var result VerifyResult
	var ks []byte

	switch cmd.P2 {
	case 0x81:
		ks, result = t.verifyUser(cmd.Data)
		if result == VerifyOK {
			t.ac.grantPSOCDS(ks)
		} else {
			t.ac.clearPSOCDS()
		}
	case 0x82:
		ks, result = t.verifyUser(cmd.Data)
		if result == VerifyOK {
			t.ac.grantPSOOther(ks)
		} else {
			t.ac.clearPSOOther()
		}
	default:
		ks, result = t.verifyAdmin(cmd.Data)
		if result == VerifyOK {
			t.ac.grantAdmin(ks)
		} else {
			t.ac.admin = false
			t.ac.adminKeystring = nil
		}
	}

	switch result {
	case VerifyOK:
		return iso7816.NewStatusResponse(iso7816.SWSuccess)
	case VerifyBlocked:
		return iso7816.NewStatusResponse(iso7816.SWAuthBlocked)
	default:
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}
}

// verifyUser checks a candidate PW1 and returns its keystring on success.
//
// The ground truth depends on what is stored: a full record compares
// digests; a truncated record (keys present, digest dropped) proves the
// password by unwrapping a key; no record at all compares against the
// factory default.
func (t *Token) verifyUser(password []byte) ([]byte, VerifyResult) {
	if t.passwordLocked(credPW1) {
		return nil, VerifyBlocked
	}

	rec, err := t.store.pw1Record()
	if err != nil {
		t.log.Warn("PW1 record unreadable", "err", err)
		return nil, VerifyFailed
	}

	expected := len(DefaultPW1)
	if rec != nil {
		expected = rec.Length
	}
	if len(password) != expected {
		t.store.bumpErrorCounter(credPW1)
		return nil, VerifyFailed
	}

	ks := Keystring(password)

	var good bool
	switch {
	case rec != nil && rec.Digest != nil:
		good = bytes.Equal(ks, rec.Digest)
	case rec != nil:
		good = t.probeUserKeystring(ks)
	default:
		good = bytes.Equal(ks, Keystring([]byte(DefaultPW1)))
	}

	if !good {
		t.store.bumpErrorCounter(credPW1)
		return nil, VerifyFailed
	}

	if err := t.store.resetErrorCounter(credPW1); err != nil {
		t.log.Warn("PW1 counter reset failed", "err", err)
	}
	return ks, VerifyOK
}

// probeUserKeystring proves a PW1 keystring by attempting to unwrap the
// first private key that exists. Only called when the digest record has
// been truncated, which in turn only happens once a key is present.
func (t *Token) probeUserKeystring(ks []byte) bool {
	for _, ref := range keyRefs {
		blob, status := t.store.keyBlobFor(ref)
		switch status {
		case loadAbsent:
			continue
		case loadOK:
			_, err := blob.dek(ByUser, ks)
			return err == nil
		default:
			return false
		}
	}
	return false
}

// verifyAdmin checks a candidate PW3 and returns its keystring on success.
func (t *Token) verifyAdmin(password []byte) ([]byte, VerifyResult) {
	if t.passwordLocked(credPW3) {
		return nil, VerifyBlocked
	}

	expected := t.store.pw3Length()
	if expected == 0 {
		expected = len(DefaultPW3)
	}
	if len(password) != expected {
		t.store.bumpErrorCounter(credPW3)
		return nil, VerifyFailed
	}

	ks, ok := t.checkAdminKeystring(password[:expected])
	if !ok {
		t.store.bumpErrorCounter(credPW3)
		return nil, VerifyFailed
	}

	if err := t.store.resetErrorCounter(credPW3); err != nil {
		t.log.Warn("PW3 counter reset failed", "err", err)
	}
	return ks, VerifyOK
}

// verifyAdminPrefix treats the head of data as the current PW3 and returns
// the split point. CHANGE REFERENCE DATA for PW3 carries old and new
// password concatenated; the stored length (or the factory default's)
// decides where one ends and the other begins.
func (t *Token) verifyAdminPrefix(data []byte) (int, []byte, VerifyResult) {
	if t.passwordLocked(credPW3) {
		return 0, nil, VerifyBlocked
	}

	expected := t.store.pw3Length()
	if expected == 0 {
		expected = len(DefaultPW3)
	}
	if len(data) < expected {
		t.store.bumpErrorCounter(credPW3)
		return 0, nil, VerifyFailed
	}

	ks, ok := t.checkAdminKeystring(data[:expected])
	if !ok {
		t.store.bumpErrorCounter(credPW3)
		return 0, nil, VerifyFailed
	}

	if err := t.store.resetErrorCounter(credPW3); err != nil {
		t.log.Warn("PW3 counter reset failed", "err", err)
	}
	return expected, ks, VerifyOK
}

func (t *Token) checkAdminKeystring(password []byte) ([]byte, bool) {
	ks := Keystring(password)

	digest, stored, err := t.store.pw3Digest()
	if err != nil {
		t.log.Warn("PW3 digest unreadable", "err", err)
		return nil, false
	}

	want := digest
	if !stored {
		want = Keystring([]byte(DefaultPW3))
	}
	return ks, bytes.Equal(ks, want)
}
