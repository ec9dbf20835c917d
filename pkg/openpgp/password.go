package openpgp

import (
	"bytes"
	"errors"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// Password and keystring management: CHANGE REFERENCE DATA, RESET RETRY
// COUNTER, and the keystring migration both of them are built on.

var (
	// errMigrateCrypto: a stored key exists but did not unwrap under the
	// old credential; the caller answers with a security failure.
	errMigrateCrypto = errors.New("openpgp: keystring migration unwrap failed")

	// errMigrateStore: persisting a re-wrapped key failed; the caller
	// answers with a memory failure.
	errMigrateStore = errors.New("openpgp: keystring migration write failed")
)

// changeKeystring re-associates every stored private key from one
// credential's keystring to another's. It returns how many keys were
// present and migrated; zero means there was nothing to migrate, which the
// callers treat as "fall back to digest bookkeeping".
func (t *Token) changeKeystring(whoOld Owner, oldKS []byte, whoNew Owner, newKS []byte) (int, error) {
	migrated := 0

	for _, ref := range keyRefs {
		blob, status := t.store.keyBlobFor(ref)
		switch status {
		case loadAbsent:
			continue
		case loadIOFail:
			return migrated, errMigrateStore
		case loadCryptoFail:
			return migrated, errMigrateCrypto
		}

		dek, err := blob.dek(whoOld, oldKS)
		if err != nil {
			return migrated, errMigrateCrypto
		}

		blob.setSlot(whoNew, newKS, dek)
		if err := t.store.storeKeyBlob(ref, blob); err != nil {
			return migrated, errMigrateStore
		}
		migrated++
	}

	return migrated, nil
}

// cmdChangeReferenceData implements CHANGE REFERENCE DATA (INS 24). The
// payload is old password || new password; P2 81 changes PW1, anything else
// changes PW3. The split point comes from the stored record's length byte
// (PW1) or from verifying the admin prefix (PW3).
func (t *Token) cmdChangeReferenceData(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	data := cmd.Data

	if cmd.P2 == 0x81 {
		return t.changePW1(data)
	}
	return t.changePW3(data)
}

func (t *Token) changePW1(data []byte) *iso7816.ResponseAPDU {
	oldLen := len(DefaultPW1)

	rec, err := t.store.pw1Record()
	if err != nil {
		t.log.Warn("PW1 record unreadable", "err", err)
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	if rec != nil {
		oldLen = rec.Length
	}

	if len(data) < oldLen {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}
	oldPW, newPW := data[:oldLen], data[oldLen:]

	oldKS := Keystring(oldPW)
	newKS := Keystring(newPW)

	migrated, err := t.changeKeystring(ByUser, oldKS, ByUser, newKS)
	switch {
	case errors.Is(err, errMigrateStore):
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	case err != nil:
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	newRec := &keystringRecord{Length: len(newPW), Digest: newKS}
	if migrated > 0 {
		// The keys already prove the new keystring; only the length byte
		// needs the record.
		newRec.Digest = nil
	}
	if err := t.store.storePW1Record(newRec); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}

	t.ac.clearPSOCDS()
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}

func (t *Token) changePW3(data []byte) *iso7816.ResponseAPDU {
	oldLen, oldKS, result := t.verifyAdminPrefix(data)
	switch result {
	case VerifyBlocked:
		return iso7816.NewStatusResponse(iso7816.SWAuthBlocked)
	case VerifyFailed:
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	newPW := data[oldLen:]
	newKS := Keystring(newPW)

	if err := t.store.setPW3(newPW); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}

	_, err := t.changeKeystring(ByAdmin, oldKS, ByAdmin, newKS)
	switch {
	case errors.Is(err, errMigrateStore):
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	case err != nil:
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	if t.ac.admin {
		t.ac.adminKeystring = newKS
	}

	if err := t.store.resetErrorCounter(credPW3); err != nil {
		t.log.Warn("PW3 counter reset failed", "err", err)
	}
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}

// cmdResetRetryCounter implements RESET RETRY COUNTER (INS 2C). P1 00
// authorizes through the resetting code (payload: code || new PW1); any
// other P1 requires a prior admin verification (payload: new PW1 alone).
func (t *Token) cmdResetRetryCounter(cmd *iso7816.Command) *iso7816.ResponseAPDU {
	if cmd.P1 == 0x00 {
		return t.resetPW1ByCode(cmd.Data)
	}
	return t.resetPW1ByAdmin(cmd.Data)
}

func (t *Token) resetPW1ByCode(data []byte) *iso7816.ResponseAPDU {
	if t.passwordLocked(credRC) {
		return iso7816.NewStatusResponse(iso7816.SWAuthBlocked)
	}

	rec, err := t.store.rcRecord()
	if err != nil {
		t.log.Warn("RC record unreadable", "err", err)
		return iso7816.NewStatusResponse(iso7816.SWGenericError)
	}
	if rec == nil {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	if len(data) < rec.Length {
		t.store.bumpErrorCounter(credRC)
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}
	code, newPW := data[:rec.Length], data[rec.Length:]

	oldKS := Keystring(code)
	newKS := Keystring(newPW)

	migrated, err := t.changeKeystring(ByResetCode, oldKS, ByUser, newKS)
	switch {
	case errors.Is(err, errMigrateStore):
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	case err != nil:
		t.store.bumpErrorCounter(credRC)
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	if migrated == 0 && !bytes.Equal(rec.Digest, oldKS) {
		t.store.bumpErrorCounter(credRC)
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	return t.commitNewPW1(newPW, newKS, migrated, credRC)
}

func (t *Token) resetPW1ByAdmin(data []byte) *iso7816.ResponseAPDU {
	if !t.ac.admin {
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	newKS := Keystring(data)

	migrated, err := t.changeKeystring(ByAdmin, t.ac.adminKeystring, ByUser, newKS)
	switch {
	case errors.Is(err, errMigrateStore):
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	case err != nil:
		return iso7816.NewStatusResponse(iso7816.SWSecurityFailure)
	}

	return t.commitNewPW1(data, newKS, migrated, credPW3)
}

// commitNewPW1 persists the replacement PW1 record (full when no keys prove
// the keystring, length-only otherwise), which resets PW1's error counter,
// clears the signing authorization, and also resets the resetting code's
// counter when the resetting code authorized the change.
func (t *Token) commitNewPW1(newPW, newKS []byte, migrated int, authorizer credential) *iso7816.ResponseAPDU {
	rec := &keystringRecord{Length: len(newPW), Digest: newKS}
	if migrated > 0 {
		rec.Digest = nil
	}
	if err := t.store.storePW1Record(rec); err != nil {
		return iso7816.NewStatusResponse(iso7816.SWMemoryFailure)
	}

	t.ac.clearPSOCDS()

	if authorizer == credRC {
		if err := t.store.resetErrorCounter(credRC); err != nil {
			t.log.Warn("RC counter reset failed", "err", err)
		}
	}
	return iso7816.NewStatusResponse(iso7816.SWSuccess)
}
