package openpgp

import (
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/logging"
	"github.com/gregLibert/openpgp-token/pkg/storage"
)

// DOStore is the tag-indexed persistent state of the card: public data
// objects, keystring records, error counters, the signature counter, and the
// wrapped private keys. Every mutation is a single atomic replace in the
// backend, which is the crash-consistency granularity the card model
// assumes of its flash driver.
type DOStore struct {
	backend storage.Backend
	log     *logging.Logger
}

func newDOStore(backend storage.Backend, log *logging.Logger) *DOStore {
	return &DOStore{backend: backend, log: log}
}

// Reserved record names outside the public tag space.
const (
	recKeystringPW1 = "ks-pw1"
	recKeystringRC  = "ks-rc"
	recDigestPW3    = "ks-pw3"
	recLengthPW3    = "pw3-len"
	recPWStatus     = "pw-status"
	recSigCounter   = "sig-counter"
)

func doKey(tag uint16) string {
	return fmt.Sprintf("do-%04x", tag)
}

func keyRecord(ref iso7816.KeyRef) string {
	return fmt.Sprintf("key-%02x", byte(ref))
}

func counterRecord(cred credential) string {
	switch cred {
	case credPW1:
		return "errcnt-pw1"
	case credRC:
		return "errcnt-rc"
	default:
		return "errcnt-pw3"
	}
}

// read returns (value, present, error); absence is not an error.
func (s *DOStore) read(key string) ([]byte, bool, error) {
	value, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *DOStore) write(key string, value []byte) error {
	return s.backend.Put(key, value)
}

func (s *DOStore) delete(key string) error {
	return s.backend.Delete(key)
}

// getDO reads a public data object by tag.
func (s *DOStore) getDO(tag uint16) ([]byte, bool, error) {
	return s.read(doKey(tag))
}

// putDO writes a public data object by tag.
func (s *DOStore) putDO(tag uint16, value []byte) error {
	return s.write(doKey(tag), value)
}

func (s *DOStore) deleteDO(tag uint16) error {
	return s.delete(doKey(tag))
}

// totalBytes is the current byte total of all persisted records, reported
// in the SELECT-MF directory template.
func (s *DOStore) totalBytes() int {
	keys, err := s.backend.List()
	if err != nil {
		s.log.Warn("store list failed", "err", err)
		return 0
	}
	total := 0
	for _, k := range keys {
		if v, ok, err := s.read(k); err == nil && ok {
			total += len(v)
		}
	}
	return total
}

// Keystring records.

func (s *DOStore) pw1Record() (*keystringRecord, error) {
	raw, ok, err := s.read(recKeystringPW1)
	if err != nil || !ok {
		return nil, err
	}
	return parseKeystringRecord(raw)
}

// storePW1Record persists the PW1 keystring record and, in the same logical
// transaction, resets the PW1 error counter.
func (s *DOStore) storePW1Record(rec *keystringRecord) error {
	if err := s.write(recKeystringPW1, rec.encode()); err != nil {
		return err
	}
	return s.resetErrorCounter(credPW1)
}

func (s *DOStore) rcRecord() (*keystringRecord, error) {
	raw, ok, err := s.read(recKeystringRC)
	if err != nil || !ok {
		return nil, err
	}
	return parseKeystringRecord(raw)
}

// storeRCRecord persists the resetting code record and resets its counter.
func (s *DOStore) storeRCRecord(rec *keystringRecord) error {
	if err := s.write(recKeystringRC, rec.encode()); err != nil {
		return err
	}
	return s.resetErrorCounter(credRC)
}

func (s *DOStore) deleteRCRecord() error {
	if err := s.delete(recKeystringRC); err != nil {
		return err
	}
	return s.resetErrorCounter(credRC)
}

// pw3Digest returns the stored admin keystring, if any. The digest is kept
// separate from the password length.
func (s *DOStore) pw3Digest() ([]byte, bool, error) {
	raw, ok, err := s.read(recDigestPW3)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(raw) != KeystringSize {
		return nil, false, fmt.Errorf("PW3 digest of %d bytes, want %d", len(raw), KeystringSize)
	}
	return raw, true, nil
}

func (s *DOStore) pw3Length() int {
	raw, ok, err := s.read(recLengthPW3)
	if err != nil || !ok || len(raw) != 1 {
		return 0
	}
	return int(raw[0])
}

// setPW3 commits a new admin password: digest, length, and counter reset in
// one logical transaction.
func (s *DOStore) setPW3(password []byte) error {
	if err := s.write(recDigestPW3, Keystring(password)); err != nil {
		return err
	}
	if err := s.write(recLengthPW3, []byte{byte(len(password))}); err != nil {
		return err
	}
	return s.resetErrorCounter(credPW3)
}

// Error counters.

func (s *DOStore) errorCounter(cred credential) uint8 {
	raw, ok, err := s.read(counterRecord(cred))
	if err != nil || !ok || len(raw) != 1 {
		return 0
	}
	return raw[0]
}

func (s *DOStore) bumpErrorCounter(cred credential) {
	n := s.errorCounter(cred)
	if n == 0xFF {
		return
	}
	if err := s.write(counterRecord(cred), []byte{n + 1}); err != nil {
		s.log.Warn("error counter write failed", "credential", cred.String(), "err", err)
	}
}

func (s *DOStore) resetErrorCounter(cred credential) error {
	return s.write(counterRecord(cred), []byte{0})
}

// PW status byte 1 (PW1 validity: 0 = one PSO:CDS, 1 = several).

func (s *DOStore) pwStatusByte() (byte, error) {
	raw, ok, err := s.read(recPWStatus)
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) != 1 {
		return 0, storage.ErrNotFound
	}
	return raw[0], nil
}

func (s *DOStore) setPWStatusByte(b byte) error {
	return s.write(recPWStatus, []byte{b})
}

// Digital signature counter, 3 bytes big-endian as exposed through DO 93.

func (s *DOStore) signatureCounter() uint32 {
	raw, ok, err := s.read(recSigCounter)
	if err != nil || !ok || len(raw) != 3 {
		return 0
	}
	return uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
}

func (s *DOStore) bumpSignatureCounter() error {
	n := s.signatureCounter() + 1
	return s.write(recSigCounter, []byte{byte(n >> 16), byte(n >> 8), byte(n)})
}

func (s *DOStore) signatureCounterBytes() []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], s.signatureCounter())
	return buf[1:]
}

// Wrapped private keys.

// loadStatus reports the outcome of a private key load.
type loadStatus int

const (
	loadOK loadStatus = iota
	loadAbsent
	loadCryptoFail
	loadIOFail
)

func (s *DOStore) keyBlobFor(ref iso7816.KeyRef) (*keyBlob, loadStatus) {
	raw, ok, err := s.read(keyRecord(ref))
	if err != nil {
		return nil, loadIOFail
	}
	if !ok {
		return nil, loadAbsent
	}
	blob, err := decodeKeyBlob(raw)
	if err != nil {
		return nil, loadCryptoFail
	}
	return blob, loadOK
}

func (s *DOStore) storeKeyBlob(ref iso7816.KeyRef, blob *keyBlob) error {
	return s.write(keyRecord(ref), blob.encode())
}

// loadPrivateKey loads and unwraps a private key through the DEK copy of
// the named credential.
func (s *DOStore) loadPrivateKey(ref iso7816.KeyRef, who Owner, ks []byte) (*rsa.PrivateKey, loadStatus) {
	blob, status := s.keyBlobFor(ref)
	if status != loadOK {
		return nil, status
	}
	key, err := blob.unwrap(who, ks)
	if err != nil {
		return nil, loadCryptoFail
	}
	return key, loadOK
}

// anyKeyPresent reports whether at least one private key blob exists.
func (s *DOStore) anyKeyPresent() bool {
	for _, ref := range keyRefs {
		if _, ok, err := s.read(keyRecord(ref)); err == nil && ok {
			return true
		}
	}
	return false
}
