package iso7816

// Host-side command builders for the OpenPGP card application.
//
// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') opens a file (MF, DF, or EF) or an
// application. P1 indicates how the file is targeted (by ID, by Name/AID,
// by Path); P2 controls the response content and file occurrence.
//
// The remaining builders mirror the OpenPGP Smart Card Application command
// set, chapter 7: VERIFY, CHANGE REFERENCE DATA, RESET RETRY COUNTER,
// PSO:CDS, PSO:DEC, INTERNAL AUTHENTICATE, GENERATE ASYMMETRIC KEY PAIR,
// READ BINARY, GET DATA and PUT DATA.

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID SelectionMethod = 0x00
	SelectByDFName SelectionMethod = 0x04 // Select by AID
)

// PasswordRef identifies a credential in VERIFY / CHANGE REFERENCE DATA (P2).
type PasswordRef byte

const (
	// RefPW1Sign is PW1 in its signature role (PSO:CDS).
	RefPW1Sign PasswordRef = 0x81
	// RefPW1Other is PW1 in its decrypt/authenticate role.
	RefPW1Other PasswordRef = 0x82
	// RefPW3 is the admin password.
	RefPW3 PasswordRef = 0x83
)

// KeyRef identifies a private key slot by its control reference template tag.
type KeyRef byte

const (
	KeySign KeyRef = 0xB6
	KeyDec  KeyRef = 0xB8
	KeyAuth KeyRef = 0xA4
)

func mustIns(code InsCode) Instruction {
	ins, _ := NewInstruction(code)
	return ins
}

// SelectByAID creates a SELECT command targeting an application by name (AID).
//
// T=0 Protocol Compatibility: when sending data we must not combine Lc and
// Le; the card answers '61 XX' and the Client retrieves the body separately.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsSelectFile), byte(SelectByDFName), 0x00, aid, 0)
}

// SelectByFileIdentifier creates a SELECT command targeting a file by its
// two-byte identifier (e.g. 3F00 for the MF, 2F02 for EF.GDO).
func SelectByFileIdentifier(cla Class, fileID [2]byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsSelectFile), byte(SelectByFileID), 0x00, fileID[:], 0)
}

// Verify creates a VERIFY command presenting a password for a credential.
func Verify(cla Class, ref PasswordRef, password []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsVerify), 0x00, byte(ref), password, 0)
}

// ChangeReferenceData creates a CHANGE REFERENCE DATA command. The payload is
// the old password immediately followed by the new one; the card determines
// the split point.
func ChangeReferenceData(cla Class, ref PasswordRef, oldPW, newPW []byte) *CommandAPDU {
	data := make([]byte, 0, len(oldPW)+len(newPW))
	data = append(data, oldPW...)
	data = append(data, newPW...)
	return NewCommandAPDU(cla, mustIns(InsChangeReferenceData), 0x00, byte(ref), data, 0)
}

// ResetRetryCounterByCode creates a RESET RETRY COUNTER command authorized by
// the resetting code (P1=0x00). The payload is resetting code || new PW1.
func ResetRetryCounterByCode(cla Class, resettingCode, newPW []byte) *CommandAPDU {
	data := make([]byte, 0, len(resettingCode)+len(newPW))
	data = append(data, resettingCode...)
	data = append(data, newPW...)
	return NewCommandAPDU(cla, mustIns(InsResetRetryCounter), 0x00, 0x81, data, 0)
}

// ResetRetryCounterByAdmin creates a RESET RETRY COUNTER command authorized
// by a prior admin VERIFY (P1=0x02). The payload is the new PW1 itself.
func ResetRetryCounterByAdmin(cla Class, newPW []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsResetRetryCounter), 0x02, 0x81, newPW, 0)
}

// ComputeDigitalSignature creates a PSO:CDS command (P1P2 = 9E9A). The
// payload must be a complete DigestInfo structure; the card performs no
// hashing of its own.
func ComputeDigitalSignature(cla Class, digestInfo []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsPerformSecurityOperation), 0x9E, 0x9A, digestInfo, MaxShortLe)
}

// Decipher creates a PSO:DEC command (P1P2 = 8086). The cryptogram is
// prefixed with the 0x00 padding indicator byte for RSA.
func Decipher(cla Class, cryptogram []byte) *CommandAPDU {
	data := make([]byte, 0, len(cryptogram)+1)
	data = append(data, 0x00)
	data = append(data, cryptogram...)
	return NewCommandAPDU(cla, mustIns(InsPerformSecurityOperation), 0x80, 0x86, data, MaxShortLe)
}

// InternalAuthenticate creates an INTERNAL AUTHENTICATE command over an
// authentication input (typically a TLS-style challenge).
func InternalAuthenticate(cla Class, challenge []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsInternalAuthenticate), 0x00, 0x00, challenge, MaxShortLe)
}

// ReadPublicKey creates a GENERATE ASYMMETRIC KEY PAIR command in its
// read-only mode (P1=0x81): it returns the public key of the slot named by
// the control reference template. The extended Lc prefix is forced because
// the application locates the template tag by absolute offset.
func ReadPublicKey(cla Class, ref KeyRef) *CommandAPDU {
	cmd := NewCommandAPDU(cla, mustIns(InsGenerateAsymmetricKeyPair), 0x81, 0x00, []byte{byte(ref), 0x00}, MaxShortLe)
	cmd.ForceExtended = true
	return cmd
}

// ReadBinary creates a READ BINARY command at the given offset.
func ReadBinary(cla Class, offset uint16) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsReadBinary), byte(offset>>8), byte(offset), nil, MaxShortLe)
}

// GetData creates a GET DATA command for a 16-bit data object tag.
func GetData(cla Class, tag uint16) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsGetData), byte(tag>>8), byte(tag), nil, MaxShortLe)
}

// PutData creates a PUT DATA command writing a data object.
func PutData(cla Class, tag uint16, value []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsPutData), byte(tag>>8), byte(tag), value, 0)
}

// PutDataOdd creates a PUT DATA command with the odd instruction byte (DB),
// used for private key import via the extended header list (tag 4D).
func PutDataOdd(cla Class, tag uint16, value []byte) *CommandAPDU {
	return NewCommandAPDU(cla, mustIns(InsPutDataOdd), byte(tag>>8), byte(tag), value, 0)
}
