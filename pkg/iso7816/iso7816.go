/*
Package iso7816 implements the APDU layer shared by the soft token and the
host-side tooling, according to the ISO/IEC 7816 standard.

It provides the fundamental building blocks for APDU (Application Protocol
Data Unit) communication: Command and Response structures for both ends of
the wire, Status Word (SW) analysis, the OpenPGP application's instruction
set, and command builders for every instruction the token accepts.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage Example: verifying PW1 against a token

	client := iso7816.NewClient(worker) // any Transmitter: PC/SC card or soft token
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectByAID(cls, openpgp.RID))
	if err != nil {
	    log.Fatal(err)
	}

	trace, err = client.Send(iso7816.Verify(cls, iso7816.RefPW1Sign, []byte("123456")))
	if err != nil {
	    log.Fatal(err)
	}
	if !trace.IsSuccess() {
	    log.Fatalf("verify refused: %s", trace.Status().Verbose())
	}
*/
package iso7816
