// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nlenc implements the byte-order primitives of the netlink wire
// format. Netlink carries integers in host byte order, except for the
// explicitly big-endian attribute kinds used by some protocol families.
package nlenc

import (
	"encoding/binary"
)

// Netlink integers travel in host byte order.
var native = binary.NativeEndian

// PutUint16 stores v at the beginning of b in host byte order.
func PutUint16(b []byte, v uint16) { native.PutUint16(b, v) }

// PutUint32 stores v at the beginning of b in host byte order.
func PutUint32(b []byte, v uint32) { native.PutUint32(b, v) }

// PutUint64 stores v at the beginning of b in host byte order.
func PutUint64(b []byte, v uint64) { native.PutUint64(b, v) }

// PutInt32 stores v at the beginning of b in host byte order.
func PutInt32(b []byte, v int32) { native.PutUint32(b, uint32(v)) }

// Uint16 reads a host byte order uint16 from the beginning of b.
func Uint16(b []byte) uint16 { return native.Uint16(b) }

// Uint32 reads a host byte order uint32 from the beginning of b.
func Uint32(b []byte) uint32 { return native.Uint32(b) }

// Uint64 reads a host byte order uint64 from the beginning of b.
func Uint64(b []byte) uint64 { return native.Uint64(b) }

// Int32 reads a host byte order int32 from the beginning of b.
func Int32(b []byte) int32 { return int32(native.Uint32(b)) }

// Uint16BE and friends read network byte order values, used by the
// big-endian attribute kinds (e.g. port numbers in sock_diag).

func Uint16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

func Uint32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func Uint64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func PutUint16BE(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

func PutUint32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

func PutUint64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// String reads a zero-terminated string from b. Bytes after the first
// NUL are discarded; a string without a terminator is taken whole.
func String(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Bytes returns the zero-terminated wire form of s.
func Bytes(s string) []byte {
	return append([]byte(s), 0)
}
