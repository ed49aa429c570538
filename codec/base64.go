package codec

import (
	"encoding/base64"
	"strings"
)

// Encode returns the standard base64 encoding of src
func Encode(src []byte) string {
	return base64.StdEncoding.EncodeToString(src)
}

// Decode decodes standard base64 text. Non-canonical input, embedded
// whitespace and truncated groups are rejected rather than silently
// truncated.
func Decode(s string) ([]byte, error) {
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, base64.CorruptInputError(strings.IndexAny(s, " \t\r\n"))
	}
	return base64.StdEncoding.Strict().DecodeString(s)
}
