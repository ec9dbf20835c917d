package iso7816

import (
	"fmt"

	"github.com/gregLibert/openpgp-token/pkg/bits"
)

// Dynamic Status Word Logic:
//
// While most Status Words (SW) are static 2-byte values (e.g., 0x9000), ISO 7816-4 defines
// specific ranges where the value is dynamic and carries contextual information:
//
// 1. '61XX' (SW1=0x61): Process Completed, Response Available.
//    XX indicates the number of extra bytes available for retrieval (GET RESPONSE).
//
// 2. '6CXX' (SW1=0x6C): Wrong Length.
//    XX indicates the correct expected length (Le) for the command.
//
// 3. '63CX' (Warning): Counter Management.
//    If the upper nibble of SW2 is 'C' (0xC0-0xCF), the lower nibble represents
//    a counter value (e.g., remaining PIN retries).

// StatusWord represents the two-byte status response (SW1-SW2) returned by the card.
type StatusWord uint16

// NewStatusWord creates a StatusWord instance from two separate bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the first byte (high byte) of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the second byte (low byte) of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsCounter checks if the status carries a retry counter (63CX).
func (sw StatusWord) IsCounter() bool {
	if sw.SW1() != 0x63 {
		return false
	}
	return bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess returns true if the command was processed successfully (9000) or
// if data is available (61XX).
func (sw StatusWord) IsSuccess() bool {
	return sw == SWSuccess || sw.SW1() == 0x61
}

// IsError returns true if the status indicates an execution or checking error
// (64XX to 6FXX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose returns a human-readable description of the status word.
// It prioritizes dynamic ISO definitions over the static name table.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	if sw.IsCounter() {
		return fmt.Sprintf("Warning: counter = %d", bits.GetRange(sw2, 4, 1))
	}

	if sw1 == 0x61 {
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	}

	if sw1 == 0x6C {
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.String())
}

// Status Word codes used by the OpenPGP application, plus the transport-level
// codes the host client reacts to. Values per ISO/IEC 7816-4.
const (
	// SWSuccess indicates normal completion.
	SWSuccess StatusWord = 0x9000

	// SWSecurityFailure covers missing authorization and wrong secrets.
	SWSecurityFailure StatusWord = 0x6982

	// SWAuthBlocked indicates the retry counter of the credential is exhausted.
	SWAuthBlocked StatusWord = 0x6983

	// SWMemoryFailure indicates a persistent write failed.
	SWMemoryFailure StatusWord = 0x6581

	// SWNoRecord indicates the command is not valid for the selected file.
	SWNoRecord StatusWord = 0x6A83

	// SWNoFile indicates the selection target was not found.
	SWNoFile StatusWord = 0x6A82

	// SWBadP1P2 indicates a parameter out of range.
	SWBadP1P2 StatusWord = 0x6B00

	// SWWrongINS indicates an instruction the application does not implement.
	SWWrongINS StatusWord = 0x6D00

	// SWGenericError is the catch-all execution failure.
	SWGenericError StatusWord = 0x6F00

	// SWRefDataNotFound indicates a GET/PUT DATA tag the store does not hold.
	SWRefDataNotFound StatusWord = 0x6A88

	// SWWrongData indicates a malformed command payload.
	SWWrongData StatusWord = 0x6A80
)

// String returns the canonical name of a known status word.
func (sw StatusWord) String() string {
	switch sw {
	case SWSuccess:
		return "Success"
	case SWSecurityFailure:
		return "Security status not satisfied"
	case SWAuthBlocked:
		return "Authentication method blocked"
	case SWMemoryFailure:
		return "Memory failure"
	case SWNoRecord:
		return "Record not found"
	case SWNoFile:
		return "File not found"
	case SWBadP1P2:
		return "Wrong parameters P1-P2"
	case SWWrongINS:
		return "Instruction not supported"
	case SWGenericError:
		return "No precise diagnosis"
	case SWRefDataNotFound:
		return "Referenced data not found"
	case SWWrongData:
		return "Incorrect parameters in data field"
	default:
		switch sw.SW1() {
		case 0x62:
			return "Warning: NV memory unchanged"
		case 0x63:
			return "Warning: NV memory changed"
		case 0x64:
			return "Execution error: NV memory unchanged"
		case 0x65:
			return "Execution error: NV memory changed"
		case 0x66:
			return "Execution error: security issue"
		case 0x68:
			return "Checking error: function not supported"
		case 0x69:
			return "Checking error: command not allowed"
		case 0x6A:
			return "Checking error: wrong parameters"
		default:
			return "Unknown status"
		}
	}
}
