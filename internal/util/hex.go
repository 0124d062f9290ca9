package util

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexToBytes converts a hex string to bytes
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// BytesToHex converts bytes to hex string with 0x prefix
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// BytesToHexNoPre converts bytes to hex string without prefix
func BytesToHexNoPre(b []byte) string {
	return hex.EncodeToString(b)
}

// MustHexToBytes converts hex string to bytes, panics on error
func MustHexToBytes(s string) []byte {
	b, err := HexToBytes(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", s))
	}
	return b
}

// IsValidHex checks if string is valid hexadecimal
func IsValidHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	_, err := hex.DecodeString(s)
	return err == nil
}

// Uint64ToHex converts uint64 to hex string with 0x prefix
func Uint64ToHex(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}
