package openpgp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// Factory boot: SELECT then VERIFY with the default PW1.
func TestVerifyFactoryPW1(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	status := verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1)
	assert.Equal(t, iso7816.SWSuccess, status)
	assert.True(t, tok.ac.psoCDS)
	assert.False(t, tok.ac.psoOther)
	assert.False(t, tok.ac.admin)
}

func TestVerifyFactoryPW1OtherRole(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	status := verifyPW(t, tok, iso7816.RefPW1Other, DefaultPW1)
	assert.Equal(t, iso7816.SWSuccess, status)
	assert.True(t, tok.ac.psoOther)
	assert.False(t, tok.ac.psoCDS)
}

func TestVerifyFactoryPW3(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	status := verifyPW(t, tok, iso7816.RefPW3, DefaultPW3)
	assert.Equal(t, iso7816.SWSuccess, status)
	assert.True(t, tok.ac.admin)
	assert.Equal(t, factoryAdminKS, tok.ac.adminKeystring)
}

func TestVerifyWrongPW1CountsAndBlocks(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	for i := 1; i <= int(defaultRetryLimit); i++ {
		status := verifyPW(t, tok, iso7816.RefPW1Sign, "bad000")
		assert.Equal(t, iso7816.SWSecurityFailure, status)
		assert.Equal(t, uint8(i), tok.store.errorCounter(credPW1))
		assert.False(t, tok.ac.psoCDS)
	}

	// Counter exhausted: even the right password is refused without being
	// consulted.
	status := verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1)
	assert.Equal(t, iso7816.SWAuthBlocked, status)
	assert.Equal(t, defaultRetryLimit, int(tok.store.errorCounter(credPW1)))
}

func TestVerifyGoodPW1ResetsCounter(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	verifyPW(t, tok, iso7816.RefPW1Sign, "bad000")
	verifyPW(t, tok, iso7816.RefPW1Sign, "bad000")
	require.Equal(t, uint8(2), tok.store.errorCounter(credPW1))

	status := verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1)
	assert.Equal(t, iso7816.SWSuccess, status)
	assert.Zero(t, tok.store.errorCounter(credPW1))
}

func TestVerifyWrongLengthFails(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	status := verifyPW(t, tok, iso7816.RefPW1Sign, "12345")
	assert.Equal(t, iso7816.SWSecurityFailure, status)
	assert.Equal(t, uint8(1), tok.store.errorCounter(credPW1))
}

func TestVerifyAdminWrongBlocksIndependently(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	for i := 0; i < int(defaultRetryLimit); i++ {
		assert.Equal(t, iso7816.SWSecurityFailure, verifyPW(t, tok, iso7816.RefPW3, "wrongpw3"))
	}
	assert.Equal(t, iso7816.SWAuthBlocked, verifyPW(t, tok, iso7816.RefPW3, DefaultPW3))

	// PW1 is untouched by PW3's lockout.
	assert.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1))
}

// With keys present and a truncated PW1 record, verification goes through a
// key unwrap instead of a digest comparison.
func TestVerifyByKeyProbe(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)
	installAllKeys(t, tok)
	require.NoError(t, tok.store.storePW1Record(&keystringRecord{Length: len(DefaultPW1)}))

	assert.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1))
	assert.Equal(t, iso7816.SWSecurityFailure, verifyPW(t, tok, iso7816.RefPW1Sign, "999999"))
}

func TestVerifyFailureClearsExistingAuthorization(t *testing.T) {
	tok, _ := newTestToken(t)
	selectApp(t, tok)

	require.Equal(t, iso7816.SWSuccess, verifyPW(t, tok, iso7816.RefPW1Sign, DefaultPW1))
	require.True(t, tok.ac.psoCDS)

	verifyPW(t, tok, iso7816.RefPW1Sign, "bad000")
	assert.False(t, tok.ac.psoCDS)
}
