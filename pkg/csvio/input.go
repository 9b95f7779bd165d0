// Package csvio reads CSV-family inputs as raw bytes: encoding guardrails,
// sep= directives, per-file dialect detection, streaming record iteration,
// and record-width normalization.
package csvio

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NulScanLimit bounds the NUL-byte scan at the head of each input.
const NulScanLimit = 8 * 1024

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16BEBOM = []byte{0xFE, 0xFF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf32BEBOM = []byte{0x00, 0x00, 0xFE, 0xFF}
	utf32LEBOM = []byte{0xFF, 0xFE, 0x00, 0x00}
)

// EncodingIssue identifies an encoding guardrail failure.
type EncodingIssue int

const (
	// IssueUTF16BOM: the input starts with a UTF-16 BOM.
	IssueUTF16BOM EncodingIssue = iota
	// IssueUTF32BOM: the input starts with a UTF-32 BOM.
	IssueUTF32BOM
	// IssueNulByte: a NUL byte appears within the first 8 KiB.
	IssueNulByte
)

// ReadInput reads a file as raw bytes. Paths ending in .gz are decompressed
// transparently before any inspection.
func ReadInput(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return decompressed, nil
}

// GuardBytes applies the encoding guardrails and strips a UTF-8 BOM.
//
// Order: a UTF-16/UTF-32 BOM refuses; a UTF-8 BOM is stripped; a NUL byte
// within the first 8 KiB refuses. The returned slice aliases the input.
func GuardBytes(input []byte) ([]byte, *EncodingIssue) {
	if issue, bad := bomIssue(input); bad {
		return nil, &issue
	}
	stripped := StripUTF8BOM(input)
	if hasNulInPrefix(stripped) {
		issue := IssueNulByte
		return nil, &issue
	}
	return stripped, nil
}

// StripUTF8BOM removes a leading UTF-8 BOM if present.
func StripUTF8BOM(input []byte) []byte {
	if bytes.HasPrefix(input, utf8BOM) {
		return input[len(utf8BOM):]
	}
	return input
}

func bomIssue(input []byte) (EncodingIssue, bool) {
	// UTF-32 prefixes subsume the UTF-16 LE prefix; check them first.
	if bytes.HasPrefix(input, utf32BEBOM) || bytes.HasPrefix(input, utf32LEBOM) {
		return IssueUTF32BOM, true
	}
	if bytes.HasPrefix(input, utf16BEBOM) || bytes.HasPrefix(input, utf16LEBOM) {
		return IssueUTF16BOM, true
	}
	return 0, false
}

func hasNulInPrefix(input []byte) bool {
	limit := len(input)
	if limit > NulScanLimit {
		limit = NulScanLimit
	}
	return bytes.IndexByte(input[:limit], 0x00) >= 0
}
