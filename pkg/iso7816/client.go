package iso7816

import (
	"fmt"

	"github.com/gregLibert/openpgp-token/pkg/logging"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over a card connection. It
// implements the automatic handling of ISO 7816-3 transport behaviors that
// are often exposed to the application layer in T=0 protocols:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically
//    generates and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card suggests the correct expected length XX. The client re-sends
//    the original command with Le = XX.
//
// The Send() method returns a Trace: the log of all atomic transactions
// that occurred to fulfill the logical request.
//
// A Transmitter can be a PC/SC card handle or an in-process token worker;
// the client is indifferent to which end of the wire it is talking to.

// Transmitter abstracts the card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter
	Log  *logging.Logger
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card, Log: logging.Discard()}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	c.Log.Debug("apdu out", logging.Hex("cmd", rawCmd))

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	c.Log.Debug("apdu in", logging.Hex("resp", rawResp))

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	trace := Trace{{Command: cmd, Response: resp}}

	sw1 := resp.Status.SW1()
	sw2 := resp.Status.SW2()

	// Case 61XX: More data available -> Issue GET RESPONSE
	if sw1 == 0x61 {
		// GET RESPONSE must use the same logical channel as the original command.
		respCls := cmd.Class
		respCls.IsChained = false

		getRespCmd := NewCommandAPDU(respCls, mustIns(InsGetResponse), 0x00, 0x00, nil, int(sw2))

		subTrace, err := c.Send(getRespCmd)
		if err != nil {
			return trace, err
		}

		return append(trace, subTrace...), nil
	}

	// Case 6CXX: Wrong Length -> Re-issue original command with correct Le
	if sw1 == 0x6C {
		// Clone command to update Le without mutating the original pointer
		newCmd := *cmd
		newCmd.Ne = int(sw2)

		subTrace, err := c.Send(&newCmd)
		if err != nil {
			return trace, err
		}

		return append(trace, subTrace...), nil
	}

	return trace, nil
}
