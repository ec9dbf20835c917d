package openpgp

import (
	"crypto/sha1"
	"fmt"
)

// A keystring is the SHA-1 digest of a password. SHA-1 is mandated by the
// OpenPGP card v2 keystring derivation; it is a format requirement, not a
// security choice.
//
// PW1 and the resetting code are persisted as a keystring record: one length
// byte holding the original password length, followed by the digest. Once
// private keys exist the digest part may be dropped (the record truncates to
// the bare length byte) because the password is then proven by unwrapping a
// key, not by digest comparison.

// KeystringSize is the byte length of a keystring (SHA-1 digest).
const KeystringSize = sha1.Size

// Factory default passwords, assumed when no record has been written.
const (
	DefaultPW1 = "123456"
	DefaultPW3 = "12345678"
)

// Keystring derives the keystring of a password.
func Keystring(password []byte) []byte {
	sum := sha1.Sum(password)
	return sum[:]
}

// keystringRecord is the stored form of PW1 and resetting code credentials.
// Digest is nil for a truncated (length-only) record.
type keystringRecord struct {
	Length int
	Digest []byte
}

func parseKeystringRecord(raw []byte) (*keystringRecord, error) {
	switch len(raw) {
	case 1:
		return &keystringRecord{Length: int(raw[0])}, nil
	case 1 + KeystringSize:
		digest := make([]byte, KeystringSize)
		copy(digest, raw[1:])
		return &keystringRecord{Length: int(raw[0]), Digest: digest}, nil
	default:
		return nil, fmt.Errorf("keystring record of %d bytes, want 1 or %d", len(raw), 1+KeystringSize)
	}
}

func (r *keystringRecord) encode() []byte {
	if r.Digest == nil {
		return []byte{byte(r.Length)}
	}
	out := make([]byte, 1+KeystringSize)
	out[0] = byte(r.Length)
	copy(out[1:], r.Digest)
	return out
}
