package openpgp

// Access-control state: three independent authorization flags held in RAM,
// plus the keystrings cached by successful verifications. Everything here is
// dropped on reset; the error counters, which persist, live in the DO store.

// credential names one of the three guarded secrets.
type credential int

const (
	credPW1 credential = iota
	credRC
	credPW3
)

func (c credential) String() string {
	switch c {
	case credPW1:
		return "PW1"
	case credRC:
		return "RC"
	default:
		return "PW3"
	}
}

// accessState is the RAM half of the access-control machine.
//
// The cached PW1 keystring is needed by PSO and INTERNAL AUTHENTICATE to
// unwrap private keys; it is kept as long as either PW1 authorization is
// live and wiped when the last one goes.
type accessState struct {
	psoCDS   bool
	psoOther bool
	admin    bool

	pw1Keystring   []byte
	adminKeystring []byte
}

func (a *accessState) grantPSOCDS(ks []byte) {
	a.psoCDS = true
	a.pw1Keystring = ks
}

func (a *accessState) grantPSOOther(ks []byte) {
	a.psoOther = true
	a.pw1Keystring = ks
}

func (a *accessState) grantAdmin(ks []byte) {
	a.admin = true
	a.adminKeystring = ks
}

func (a *accessState) clearPSOCDS() {
	a.psoCDS = false
	if !a.psoOther {
		a.pw1Keystring = nil
	}
}

func (a *accessState) clearPSOOther() {
	a.psoOther = false
	if !a.psoCDS {
		a.pw1Keystring = nil
	}
}

func (a *accessState) reset() {
	*a = accessState{}
}
