// Package align pairs up the data records of the two inputs: lockstep
// row-order alignment, keyed hash-join with key validation, and advisory key
// discovery for shuffle detection.
package align

import (
	"encoding/hex"
	"strings"

	"github.com/cmdrvl/rvl/pkg/errors"
)

// ParseKeyIdentifier decodes a --key argument into raw header bytes.
//
// Accepted forms: a plain UTF-8 string (treated as u8:<...>), u8:<utf8>, or
// hex:<hex-bytes> with case-insensitive hex digits. The returned bytes are
// matched against normalized header names.
func ParseKeyIdentifier(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New(errors.TypeValidation, "key identifier is empty")
	}
	if rest, ok := strings.CutPrefix(raw, "u8:"); ok {
		return []byte(rest), nil
	}
	if rest, ok := strings.CutPrefix(raw, "hex:"); ok {
		if rest == "" {
			return nil, errors.New(errors.TypeValidation, "invalid hex key identifier")
		}
		if len(rest)%2 != 0 {
			return nil, errors.New(errors.TypeValidation, "hex key identifier must have even length")
		}
		decoded, err := hex.DecodeString(rest)
		if err != nil {
			return nil, errors.New(errors.TypeValidation, "invalid hex key identifier")
		}
		return decoded, nil
	}
	return []byte(raw), nil
}
