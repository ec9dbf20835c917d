package iso7816

import (
	"fmt"

	"github.com/gregLibert/openpgp-token/pkg/bits"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// The CLA byte conveys the command class, covering secure messaging (SM),
// command chaining, and logical channel selection.
//
// Structure (First Interindustry, 00xx xxxx):
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
// Bits 4-3: Secure Messaging indicator.
// Bits 2-1: Logical Channel number (0-3).
//
// The OpenPGP application itself never inspects CLA; the type exists for the
// host side, which must emit well-formed class bytes.

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	// SMNone indicates no secure messaging or no indication given.
	SMNone SecureMessaging = 0
	// SMProprietary indicates a proprietary secure messaging format.
	SMProprietary SecureMessaging = 1
	// SMHeaderNoProc indicates SM according to ISO, header not processed.
	SMHeaderNoProc SecureMessaging = 2
	// SMHeaderAuth indicates SM according to ISO, header authenticated.
	SMHeaderAuth SecureMessaging = 3
)

// Class represents the parsed ISO 7816-4 Class byte (CLA).
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass creates a Class object by decoding a raw CLA byte.
// Only the first-interindustry range (00-3F) and proprietary bytes are
// accepted; 0xFF is reserved by ISO 7816-3.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}
	if !bits.IsSet(cla, 8) && bits.IsSet(cla, 7) {
		return Class{}, fmt.Errorf("unsupported CLA 0x%02X: further interindustry classes are not handled", cla)
	}

	c := Class{Raw: cla}

	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
	c.Channel = bits.GetRange(cla, 2, 1)

	return c, nil
}

// Encode converts the Class object back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}

	if c.Channel > 3 {
		return 0, fmt.Errorf("channel %d out of range (max 3)", c.Channel)
	}

	var res byte
	if c.IsChained {
		res = bits.Set(res, 5)
	}
	res |= byte(c.SecureMessaging) << 2
	res |= c.Channel

	return res, nil
}
