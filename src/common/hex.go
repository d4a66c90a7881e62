package common

import (
	"encoding/hex"
	"strings"
)

// EncodeToString returns the lowercase hex representation of b, without
// prefix. Links, public keys and signatures all use this form.
func EncodeToString(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeFromString decodes a hex string, tolerating an optional 0x prefix.
func DecodeFromString(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
