package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex fragments such as "00 A4 04 00". It panics on bad input,
// which makes it suitable for fixtures and constant tables only.
func Hex(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")
	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}

// Spaced formats data as upper-case hex bytes separated by spaces, the way APDUs are usually logged.
func Spaced(data []byte) string {
	return fmt.Sprintf("% X", data)
}
