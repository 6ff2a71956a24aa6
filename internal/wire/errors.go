package wire

import "errors"

var (
	// errWrongIdLength is returned by ParseId for malformed hex input.
	errWrongIdLength = errors.New("wire: id must decode to exactly 32 bytes")

	// ErrSignatureInvalid is returned by Deserialize when the attached
	// signature does not verify under the supplied public key.
	ErrSignatureInvalid = errors.New("wire: signature invalid")

	// ErrCodecFailure is returned by Deserialize/DecodeState for malformed
	// or unrecognized bytes.
	ErrCodecFailure = errors.New("wire: malformed frame")
)
