package util

import (
	"bytes"
	"testing"
)

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected []byte
		hasError bool
	}{
		{"0x1234", []byte{0x12, 0x34}, false},
		{"1234", []byte{0x12, 0x34}, false},
		{"0xabcd", []byte{0xab, 0xcd}, false},
		{"ABCD", []byte{0xab, 0xcd}, false},
		{"", []byte{}, false},
		{"0x", []byte{}, false},
		{"xyz", nil, true},
		{"0x123", nil, true}, // Odd length
	}

	for _, tt := range tests {
		result, err := HexToBytes(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("HexToBytes(%q) should return error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("HexToBytes(%q) returned error: %v", tt.input, err)
			}
			if !bytes.Equal(result, tt.expected) {
				t.Errorf("HexToBytes(%q) = %x, want %x", tt.input, result, tt.expected)
			}
		}
	}
}

func TestBytesToHex(t *testing.T) {
	tests := []struct {
		input    []byte
		expected string
	}{
		{[]byte{0x12, 0x34}, "0x1234"},
		{[]byte{0xab, 0xcd}, "0xabcd"},
		{[]byte{}, "0x"},
		{[]byte{0x00}, "0x00"},
	}

	for _, tt := range tests {
		result := BytesToHex(tt.input)
		if result != tt.expected {
			t.Errorf("BytesToHex(%x) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestBytesToHexNoPre(t *testing.T) {
	tests := []struct {
		input    []byte
		expected string
	}{
		{[]byte{0x12, 0x34}, "1234"},
		{[]byte{0xab, 0xcd}, "abcd"},
		{[]byte{}, ""},
	}

	for _, tt := range tests {
		result := BytesToHexNoPre(tt.input)
		if result != tt.expected {
			t.Errorf("BytesToHexNoPre(%x) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestIsValidHex(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0x1234", true},
		{"1234", true},
		{"abcdef", true},
		{"ABCDEF", true},
		{"0xABCDEF", true},
		{"xyz", false},
		{"0x123g", false},
		{"", true}, // Empty is valid
	}

	for _, tt := range tests {
		result := IsValidHex(tt.input)
		if result != tt.expected {
			t.Errorf("IsValidHex(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func BenchmarkHexToBytes(b *testing.B) {
	input := "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	for i := 0; i < b.N; i++ {
		HexToBytes(input)
	}
}

func BenchmarkBytesToHex(b *testing.B) {
	input := make([]byte, 32)
	for i := range input {
		input[i] = byte(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BytesToHex(input)
	}
}
