package config

import (
	"strconv"
	"strings"

	"github.com/cmdrvl/rvl/pkg/errors"
)

// ParseDelimiter parses a --delimiter flag into a single ASCII byte.
//
// Accepted inputs (keywords and hex case-insensitive):
//   - named: comma, tab, semicolon, pipe, caret
//   - hex: 0xNN (ASCII byte 0x01..=0x7F, excluding '"', CR, LF)
//   - a single ASCII byte literal under the same exclusions
//
// Escape sequences are not supported; use tab or 0x09 rather than \t.
func ParseDelimiter(raw string) (byte, error) {
	if raw == "" {
		return 0, errors.New(errors.TypeValidation, "delimiter is empty")
	}

	switch strings.ToLower(raw) {
	case "comma":
		return ',', nil
	case "tab":
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	case "caret":
		return '^', nil
	}

	if len(raw) >= 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		hexDigits := raw[2:]
		if len(hexDigits) != 2 {
			return 0, errors.New(errors.TypeValidation, "invalid hex delimiter; expected 0xNN")
		}
		value, err := strconv.ParseUint(hexDigits, 16, 8)
		if err != nil {
			return 0, errors.New(errors.TypeValidation, "invalid hex delimiter; expected 0xNN")
		}
		return validateDelimiterByte(byte(value))
	}

	if len(raw) != 1 {
		// A multi-byte rune is a single char but never a valid ASCII byte.
		if len([]rune(raw)) == 1 {
			return 0, errors.New(errors.TypeValidation, "delimiter must be a single ASCII byte")
		}
		return 0, errors.New(errors.TypeValidation, "invalid delimiter value")
	}
	return validateDelimiterByte(raw[0])
}

func validateDelimiterByte(b byte) (byte, error) {
	if b < 0x01 || b > 0x7F || b == '"' || b == '\r' || b == '\n' {
		return 0, errors.Newf(errors.TypeValidation, "invalid delimiter byte 0x%02X", b)
	}
	return b, nil
}
