package openpgp

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/logging"
	"github.com/gregLibert/openpgp-token/pkg/storage"
	"github.com/gregLibert/openpgp-token/pkg/tlv"
)

// RID is the registered application provider identifier for OpenPGP.
var RID = tlv.Hex("D2 76 00 01 24 01")

// DefaultAID is the full 16-byte application identifier used when the
// configuration does not provide one: RID, application version 2.0,
// manufacturer, serial number, RFU.
var DefaultAID = tlv.Hex("D2 76 00 01 24 01 02 00 F5 17 00 00 00 01 00 00")

// defaultHistoricalBytes advertises card service data, command chaining
// (without extended Lc/Le), and life-cycle status.
var defaultHistoricalBytes = tlv.Hex("00 31 84 73 80 01 80 00 90 00")

const defaultRetryLimit = 3

// fileID tracks which ISO 7816 file is currently selected. It decides which
// commands are acceptable; it survives across commands but not across reset.
type fileID int

const (
	fileNone fileID = iota
	fileMF
	fileDFOpenPGP
	fileEFDir
	fileEFSerial
)

// Config carries the static identity and policy of a token.
type Config struct {
	// AID is the 16-byte application identifier. First six bytes must be
	// the OpenPGP RID.
	AID []byte

	// HistoricalBytes is returned inside the application related data.
	HistoricalBytes []byte

	// RetryLimitPW1, RetryLimitRC and RetryLimitPW3 give the error counter
	// maxima per credential. Zero means the default of 3.
	RetryLimitPW1 uint8
	RetryLimitRC  uint8
	RetryLimitPW3 uint8

	// PW1ValidSeveral is the factory default of PW status byte 1: when
	// false, a PW1 verification for signing is consumed by a single
	// PSO:CDS. The persisted PW status DO overrides this once written.
	PW1ValidSeveral bool

	// Rand is the entropy source for key wrapping. Defaults to crypto/rand.
	Rand io.Reader

	// Logger receives per-instruction dispatch notes. Defaults to a
	// discarding logger.
	Logger *logging.Logger
}

// Token is the card application: one instance per (virtual) card.
//
// A Token is not safe for concurrent use; the Worker serializes access the
// way the device's single GPG fiber does.
type Token struct {
	cfg   Config
	store *DOStore
	ac    accessState
	file  fileID
	log   *logging.Logger
}

// New creates a token over a storage backend. State already present in the
// backend (keystrings, keys, counters, data objects) is picked up as-is, so
// a file-backed token survives process restarts like a card survives power
// cycles: authorizations gone, persistent objects intact.
func New(backend storage.Backend, cfg Config) (*Token, error) {
	if cfg.AID == nil {
		cfg.AID = DefaultAID
	}
	if len(cfg.AID) != 16 {
		return nil, fmt.Errorf("openpgp: AID must be 16 bytes, got %d", len(cfg.AID))
	}
	if cfg.HistoricalBytes == nil {
		cfg.HistoricalBytes = defaultHistoricalBytes
	}
	if cfg.RetryLimitPW1 == 0 {
		cfg.RetryLimitPW1 = defaultRetryLimit
	}
	if cfg.RetryLimitRC == 0 {
		cfg.RetryLimitRC = defaultRetryLimit
	}
	if cfg.RetryLimitPW3 == 0 {
		cfg.RetryLimitPW3 = defaultRetryLimit
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &Token{
		cfg:   cfg,
		store: newDOStore(backend, cfg.Logger),
		log:   cfg.Logger,
	}, nil
}

// handler processes one parsed command and always produces a response.
type handler func(*Token, *iso7816.Command) *iso7816.ResponseAPDU

// handlers maps instruction bytes to their implementations. PUT DATA and its
// odd twin share one handler; cmdPutData discriminates on the tag.
var handlers = map[iso7816.InsCode]handler{
	iso7816.InsVerify:                    (*Token).cmdVerify,
	iso7816.InsChangeReferenceData:       (*Token).cmdChangeReferenceData,
	iso7816.InsPerformSecurityOperation:  (*Token).cmdPerformSecurityOperation,
	iso7816.InsResetRetryCounter:         (*Token).cmdResetRetryCounter,
	iso7816.InsGenerateAsymmetricKeyPair: (*Token).cmdGenerateKeyPair,
	iso7816.InsInternalAuthenticate:      (*Token).cmdInternalAuthenticate,
	iso7816.InsSelectFile:                (*Token).cmdSelectFile,
	iso7816.InsReadBinary:                (*Token).cmdReadBinary,
	iso7816.InsGetData:                   (*Token).cmdGetData,
	iso7816.InsPutData:                   (*Token).cmdPutData,
	iso7816.InsPutDataOdd:                (*Token).cmdPutData,
}

// Process executes one command APDU and returns the serialized response,
// payload followed by SW1/SW2. It never panics on malformed input: a header
// shorter than four bytes or a body overrunning the buffer is answered with
// a generic error status.
func (t *Token) Process(raw []byte) []byte {
	cmd, err := iso7816.ParseCommand(raw)
	if err != nil {
		t.log.Debug("apdu rejected", "err", err)
		return iso7816.NewStatusResponse(iso7816.SWGenericError).Bytes()
	}

	h, ok := handlers[cmd.INS]
	if !ok {
		t.log.Debug("unknown instruction", "ins", cmd.INS.String())
		return iso7816.NewStatusResponse(iso7816.SWWrongINS).Bytes()
	}

	resp := h(t, cmd)
	t.log.Debug("dispatched",
		"ins", cmd.INS.String(),
		"p1", fmt.Sprintf("%02X", cmd.P1),
		"p2", fmt.Sprintf("%02X", cmd.P2),
		"sw", resp.Status.Verbose())
	return resp.Bytes()
}

// Reset models a power cycle: all authorizations and the file selection are
// dropped, persistent state is untouched.
func (t *Token) Reset() {
	t.ac.reset()
	t.file = fileNone
}

// AID returns the configured application identifier.
func (t *Token) AID() []byte {
	out := make([]byte, len(t.cfg.AID))
	copy(out, t.cfg.AID)
	return out
}

// pw1ValidForSeveral reports PW status byte 1: whether a PW1 verification
// for signing survives more than one PSO:CDS. The persisted PW status DO
// wins over the configured factory default.
func (t *Token) pw1ValidForSeveral() bool {
	if b, err := t.store.pwStatusByte(); err == nil {
		return b != 0
	}
	return t.cfg.PW1ValidSeveral
}

func (t *Token) retryLimit(cred credential) uint8 {
	switch cred {
	case credPW1:
		return t.cfg.RetryLimitPW1
	case credRC:
		return t.cfg.RetryLimitRC
	default:
		return t.cfg.RetryLimitPW3
	}
}

// passwordLocked reports whether the credential's error counter has reached
// its maximum. A locked credential fails every verification without the
// secret being consulted.
func (t *Token) passwordLocked(cred credential) bool {
	return t.store.errorCounter(cred) >= t.retryLimit(cred)
}

func (t *Token) remainingAttempts(cred credential) uint8 {
	n := t.store.errorCounter(cred)
	limit := t.retryLimit(cred)
	if n >= limit {
		return 0
	}
	return limit - n
}
