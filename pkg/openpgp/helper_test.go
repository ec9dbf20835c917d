package openpgp

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/storage"
)

// One RSA key for the whole package: generation is the slow part of these
// tests and the handlers never care that keys are shared between cases.
var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generating RSA key: %v", err)
		}
	})
	return testKey
}

func newTestToken(t *testing.T) (*Token, *storage.MemoryStorage) {
	t.Helper()
	backend := storage.NewMemory()
	token, err := New(backend, Config{})
	require.NoError(t, err)
	return token, backend
}

// send encodes a command, runs it through the token, and parses the reply.
func send(t *testing.T, tok *Token, cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	t.Helper()
	raw, err := cmd.Bytes()
	require.NoError(t, err)
	resp, err := iso7816.ParseResponseAPDU(tok.Process(raw))
	require.NoError(t, err)
	return resp
}

func sendRaw(t *testing.T, tok *Token, raw []byte) *iso7816.ResponseAPDU {
	t.Helper()
	resp, err := iso7816.ParseResponseAPDU(tok.Process(raw))
	require.NoError(t, err)
	return resp
}

func testClass(t *testing.T) iso7816.Class {
	t.Helper()
	cls, err := iso7816.NewClass(0x00)
	require.NoError(t, err)
	return cls
}

func selectApp(t *testing.T, tok *Token) {
	t.Helper()
	resp := send(t, tok, iso7816.SelectByAID(testClass(t), RID))
	require.Equal(t, iso7816.SWSuccess, resp.Status)
}

func verifyPW(t *testing.T, tok *Token, ref iso7816.PasswordRef, pw string) iso7816.StatusWord {
	t.Helper()
	return send(t, tok, iso7816.Verify(testClass(t), ref, []byte(pw))).Status
}

var (
	factoryUserKS  = Keystring([]byte(DefaultPW1))
	factoryAdminKS = Keystring([]byte(DefaultPW3))
)

// installKey writes a wrapped test key directly into the store, bypassing
// the import handler.
func installKey(t *testing.T, tok *Token, ref iso7816.KeyRef, slots map[Owner][]byte) {
	t.Helper()
	blob, err := newKeyBlob(rand.Reader, testRSAKey(t), slots)
	require.NoError(t, err)
	require.NoError(t, tok.store.storeKeyBlob(ref, blob))
}

func installAllKeys(t *testing.T, tok *Token) {
	t.Helper()
	slots := map[Owner][]byte{
		ByUser:  factoryUserKS,
		ByAdmin: factoryAdminKS,
	}
	for _, ref := range keyRefs {
		installKey(t, tok, ref, slots)
	}
}

// sha1DigestInfo wraps a 20-byte digest in the DER structure PSO:CDS wants.
var digestInfoPrefix = []byte{
	0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2B, 0x0E,
	0x03, 0x02, 0x1A, 0x05, 0x00, 0x04, 0x14,
}

func sha1DigestInfo(digest [20]byte) []byte {
	return append(append([]byte{}, digestInfoPrefix...), digest[:]...)
}
