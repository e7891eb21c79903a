// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlenc

import (
	"bytes"
	"testing"
)

func TestUintRoundTrip(t *testing.T) {
	b := make([]byte, 8)

	PutUint16(b, 0xbeef)
	if Uint16(b) != 0xbeef {
		t.Errorf("uint16 round trip: got %#x", Uint16(b))
	}

	PutUint32(b, 0xdeadbeef)
	if Uint32(b) != 0xdeadbeef {
		t.Errorf("uint32 round trip: got %#x", Uint32(b))
	}

	PutUint64(b, 0x0102030405060708)
	if Uint64(b) != 0x0102030405060708 {
		t.Errorf("uint64 round trip: got %#x", Uint64(b))
	}

	PutInt32(b, -4095)
	if Int32(b) != -4095 {
		t.Errorf("int32 round trip: got %d", Int32(b))
	}
}

func TestBigEndian(t *testing.T) {
	b := make([]byte, 4)
	PutUint32BE(b, 0x01020304)
	if !bytes.Equal(b, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("unexpected big endian layout: % x", b)
	}
	if Uint32BE(b) != 0x01020304 {
		t.Errorf("uint32be round trip: got %#x", Uint32BE(b))
	}
	PutUint16BE(b, 0x0a0b)
	if Uint16BE(b) != 0x0a0b {
		t.Errorf("uint16be round trip: got %#x", Uint16BE(b))
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"terminated", []byte{'e', 't', 'h', '0', 0}, "eth0"},
		{"trailing garbage", []byte{'l', 'o', 0, 'x', 'x'}, "lo"},
		{"unterminated", []byte{'w', 'g', '0'}, "wg0"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.in); got != tt.want {
				t.Errorf("String(% x) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBytes(t *testing.T) {
	b := Bytes("eth0")
	if !bytes.Equal(b, []byte{'e', 't', 'h', '0', 0}) {
		t.Errorf("Bytes: got % x", b)
	}
	if String(b) != "eth0" {
		t.Errorf("String(Bytes): got %q", String(b))
	}
}
