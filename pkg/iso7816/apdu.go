package iso7816

import (
	"bytes"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc encoded as 0x00 followed by 2 bytes big-endian.
//
// This package serves both sides of the wire: the host encodes commands and
// parses responses; the token parses commands and encodes responses.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// HeaderSize is the mandatory command prefix: CLA, INS, P1, P2.
	HeaderSize = 4

	// ShortDataOffset is where the payload starts after a one-byte Lc.
	ShortDataOffset = 5

	// ExtendedDataOffset is where the payload starts after a three-byte Lc.
	ExtendedDataOffset = 7
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)

	// ForceExtended requests extended Lc encoding even when the payload would
	// fit a short Lc. Some card applications locate payload bytes by absolute
	// offset and expect the 7-byte extended prefix.
	ForceExtended bool
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// It automatically selects Short or Extended encoding based on the payload
// length and the expected response length, unless ForceExtended is set.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("payload of %d bytes exceeds extended Lc limit", nc)
	}

	isExtended := c.ForceExtended || nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !isExtended {
			// Case 3/4 Short: Lc (1 byte) + Data
			buf.WriteByte(byte(nc))
		} else {
			// Case 3/4 Extended: 00 + Lc (2 bytes) + Data
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			if ne == MaxShortLe {
				buf.WriteByte(0x00) // 0x00 represents 256
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			// Case 2/4 Extended. If Lc was absent a leading 00 distinguishes Le from Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			buf.WriteByte(byte(ne >> 8))
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// Command is the card-side view of a received C-APDU. Unlike CommandAPDU it
// keeps the raw buffer: for a card processor the total wire length is
// authoritative and Lc is advisory.
type Command struct {
	CLA  byte
	INS  InsCode
	P1   byte
	P2   byte
	Data []byte

	// Extended reports whether the Lc field used the three-byte encoding.
	Extended bool

	// Raw is the complete buffer the command was parsed from.
	Raw []byte
}

// Tag combines P1 and P2 into the 16-bit tag used by GET DATA / PUT DATA.
func (c *Command) Tag() uint16 {
	return uint16(c.P1)<<8 | uint16(c.P2)
}

// ParseCommand parses a raw C-APDU buffer into its card-side view.
//
// The header must be complete (4 bytes). The payload, if an Lc is present, is
// bounds-checked against the true buffer length before slicing; a body that
// claims more bytes than the buffer holds is an error. Trailing bytes beyond
// the payload (the Le field) are tolerated and remain visible through Raw.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("command too short: %d bytes, need at least %d", len(raw), HeaderSize)
	}

	cmd := &Command{
		CLA: raw[0],
		INS: InsCode(raw[1]),
		P1:  raw[2],
		P2:  raw[3],
		Raw: raw,
	}

	if len(raw) == HeaderSize {
		return cmd, nil
	}

	lc := int(raw[4])
	dataStart := ShortDataOffset

	if lc == 0 && len(raw) >= ExtendedDataOffset {
		lc = int(raw[5])<<8 | int(raw[6])
		dataStart = ExtendedDataOffset
		cmd.Extended = true
	}

	if dataStart+lc > len(raw) {
		return nil, fmt.Errorf("Lc %d overruns buffer of %d bytes", lc, len(raw))
	}

	cmd.Data = raw[dataStart : dataStart+lc]
	return cmd, nil
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// NewResponse builds a response carrying payload bytes and a status word.
func NewResponse(data []byte, sw StatusWord) *ResponseAPDU {
	return &ResponseAPDU{Data: data, Status: sw}
}

// NewStatusResponse builds a response with no payload.
func NewStatusResponse(sw StatusWord) *ResponseAPDU {
	return &ResponseAPDU{Status: sw}
}

// Bytes serializes the response as payload || SW1 || SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, len(r.Data)+2)
	copy(out, r.Data)
	out[len(r.Data)] = r.Status.SW1()
	out[len(r.Data)+1] = r.Status.SW2()
	return out
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:indexSW1],
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
