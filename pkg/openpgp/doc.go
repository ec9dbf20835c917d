/*
Package openpgp implements the card side of the OpenPGP smart card
application, version 2: an APDU-driven command processor holding three
long-lived RSA private keys (signing, decryption, authentication) behind a
password-based access-control regime.

# Structure

A Token owns all mutable card state: the access-control flags, the selected
file, and a handle to the data object store. Process consumes one command
APDU and produces exactly one response APDU; every error becomes a status
word, nothing escapes the handler.

A Worker wraps a Token in the single-fiber execution model of the real
device: one goroutine executes commands strictly in delivery order, and the
hand-off with the transport happens over a pair of channel operations. The
Worker satisfies iso7816.Transmitter, so the same host-side Client drives
either a PC/SC reader or an in-process token.

# Credentials

Three credentials guard the card: PW1 (user), the resetting code, and PW3
(admin). A credential is presented through VERIFY; its SHA-1 digest (the
"keystring") doubles as the wrapping secret for the private keys at rest.
Each credential has a persistent error counter; three consecutive failures
block it until an authorized reset.
*/
package openpgp
