package openpgp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// Private keys at rest.
//
// A key blob carries the PKCS#1 serialization of the RSA key, encrypted
// under a random data-encryption key (DEK), plus up to three copies of that
// DEK, each encrypted under the keystring of one credential. Re-associating
// a key with a new password therefore never touches the bulk ciphertext:
// only the DEK copy of the target credential is rewritten.
//
// The public half (modulus, exponent) is stored in the clear; reading a
// public key requires no credential.

// Owner names the credential a DEK copy is encrypted under.
type Owner int

const (
	ByUser Owner = iota
	ByResetCode
	ByAdmin
	ownerCount
)

func (o Owner) String() string {
	switch o {
	case ByUser:
		return "user"
	case ByResetCode:
		return "resetcode"
	default:
		return "admin"
	}
}

// keyRefs lists the three key slots in the order every bulk operation
// (keystring migration, key probing, key presence check) walks them.
var keyRefs = []iso7816.KeyRef{iso7816.KeySign, iso7816.KeyDec, iso7816.KeyAuth}

const (
	keyBlobVersion = 1
	dekSize        = 16
	ivSize         = aes.BlockSize
)

var (
	// errUnwrap covers every cryptographic unwrap failure: no DEK copy for
	// the credential, or an integrity check mismatch (wrong keystring).
	errUnwrap = errors.New("openpgp: key unwrap failed")

	errBlobCorrupt = errors.New("openpgp: key blob corrupt")
)

// keyBlob is the decoded at-rest form of one private key.
type keyBlob struct {
	iv         []byte
	check      []byte // SHA-1 of the PKCS#1 plaintext
	modulus    []byte
	exponent   []byte
	dekSlots   [ownerCount][]byte // encrypted DEK per credential, nil if absent
	ciphertext []byte
}

// newKeyBlob wraps a private key. slots maps each credential that must be
// able to unwrap the key to its keystring.
func newKeyBlob(rng io.Reader, key *rsa.PrivateKey, slots map[Owner][]byte) (*keyBlob, error) {
	dek := make([]byte, dekSize)
	if _, err := io.ReadFull(rng, dek); err != nil {
		return nil, fmt.Errorf("openpgp: draw DEK: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rng, iv); err != nil {
		return nil, fmt.Errorf("openpgp: draw IV: %w", err)
	}

	plaintext := x509.MarshalPKCS1PrivateKey(key)
	check := sha1.Sum(plaintext)

	blob := &keyBlob{
		iv:         iv,
		check:      check[:],
		modulus:    key.N.Bytes(),
		exponent:   big32(key.E),
		ciphertext: ctrCrypt(dek, iv, plaintext),
	}
	for owner, ks := range slots {
		blob.setSlot(owner, ks, dek)
	}
	return blob, nil
}

// setSlot (re-)encrypts the DEK under a credential's keystring.
func (b *keyBlob) setSlot(owner Owner, ks, dek []byte) {
	b.dekSlots[owner] = ctrCrypt(ks[:dekSize], b.iv, dek)
}

// dek recovers the data-encryption key through a credential's slot and
// proves the keystring right against the blob's integrity check.
func (b *keyBlob) dek(owner Owner, ks []byte) ([]byte, error) {
	slot := b.dekSlots[owner]
	if slot == nil {
		return nil, errUnwrap
	}
	dek := ctrCrypt(ks[:dekSize], b.iv, slot)

	plaintext := ctrCrypt(dek, b.iv, b.ciphertext)
	sum := sha1.Sum(plaintext)
	if !bytes.Equal(sum[:], b.check) {
		return nil, errUnwrap
	}
	return dek, nil
}

// unwrap loads the private key through a credential's DEK copy.
func (b *keyBlob) unwrap(owner Owner, ks []byte) (*rsa.PrivateKey, error) {
	dek, err := b.dek(owner, ks)
	if err != nil {
		return nil, err
	}
	plaintext := ctrCrypt(dek, b.iv, b.ciphertext)
	key, err := x509.ParsePKCS1PrivateKey(plaintext)
	if err != nil {
		return nil, errUnwrap
	}
	return key, nil
}

func ctrCrypt(key, iv, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		// Key sizes are fixed by construction.
		panic(err)
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(out, data)
	return out
}

func big32(e int) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(e))
	return out
}

// encode serializes the blob:
//
//	version | iv | check | len16 modulus | len8 exponent |
//	3 x (len8 dek-copy) | len16 ciphertext
func (b *keyBlob) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(keyBlobVersion)
	buf.Write(b.iv)
	buf.Write(b.check)

	var l16 [2]byte
	binary.BigEndian.PutUint16(l16[:], uint16(len(b.modulus)))
	buf.Write(l16[:])
	buf.Write(b.modulus)

	buf.WriteByte(byte(len(b.exponent)))
	buf.Write(b.exponent)

	for _, slot := range b.dekSlots {
		buf.WriteByte(byte(len(slot)))
		buf.Write(slot)
	}

	binary.BigEndian.PutUint16(l16[:], uint16(len(b.ciphertext)))
	buf.Write(l16[:])
	buf.Write(b.ciphertext)
	return buf.Bytes()
}

func decodeKeyBlob(raw []byte) (*keyBlob, error) {
	r := &blobReader{data: raw}

	if v := r.byte(); v != keyBlobVersion {
		return nil, errBlobCorrupt
	}

	b := &keyBlob{
		iv:    r.take(ivSize),
		check: r.take(sha1.Size),
	}
	b.modulus = r.take(int(r.uint16()))
	b.exponent = r.take(int(r.byte()))
	for i := range b.dekSlots {
		if n := int(r.byte()); n > 0 {
			b.dekSlots[i] = r.take(n)
		}
	}
	b.ciphertext = r.take(int(r.uint16()))

	if r.failed || r.pos != len(raw) {
		return nil, errBlobCorrupt
	}
	return b, nil
}

// blobReader is a cursor over an encoded blob; any overrun latches failed
// instead of panicking, so decode ends with a single check.
type blobReader struct {
	data   []byte
	pos    int
	failed bool
}

func (r *blobReader) take(n int) []byte {
	if r.failed || n < 0 || r.pos+n > len(r.data) {
		r.failed = true
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out
}

func (r *blobReader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *blobReader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}
